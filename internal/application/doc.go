// Package application assembles the HTTP application: a Builder collects the
// route table, path prefix, startup hooks, CORS policy and middleware, and
// Build validates them at a single point before returning an App. The App
// runs its startup hooks once, binds the listener only after every hook
// succeeded, and shuts down gracefully. New wires the document assistant
// dependencies from the resolved configuration.
package application

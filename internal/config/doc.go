// Package config loads runtime configuration from multiple sources (a dotenv
// file, environment variables, a YAML file, CLI flags) with precedence:
// CLI flags > YAML config > Environment variables > Defaults. It exposes
// strongly typed settings for the server, CORS policy, collection backend,
// LLM provider and retrieval tuning.
package config

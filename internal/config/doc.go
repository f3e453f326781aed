// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for
// modelexplorer.
//
// # Key Types
//
//   - Config: main configuration structure with all settings
//   - ModelConfig, OllamaConfig, OpenAIConfig: backend selection
//   - StorageConfig: conversation persistence backend and paths
//   - ServerConfig: HTTP/SSE gateway listen address and limits
//   - Watcher: hot reload of the config file while serving
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (MODELEXPLORER_*)
//   - ~/.modelexplorer/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	addr := cfg.Server.Addr()
package config

// Package config handles configuration loading for the operator console.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	operator:
//	  token: "${OPSDESK_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	connection:
//	  list_poll: "5s"
//	  detail_poll: "3s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server endpoints:
//
//	server:
//	  api_base_url: "https://ops.example.com/api/admin"
//	  ws_url: "wss://ops.example.com/ws/admin"
//
// Operator identity:
//
//	operator:
//	  admin_id: "op-7"
//	  token: "${OPSDESK_TOKEN}"
//	  token_file: "~/.config/opsdesk/token"   # wins over token
//
// Sync timing:
//
//	connection:
//	  list_poll: "5s"     # sidebar refresh interval
//	  detail_poll: "3s"   # open-conversation poll while the socket is down
//
// Notifications:
//
//	notifications:
//	  enabled: true
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	  file: ""        # empty logs to stderr
//
// # Validation
//
// Load() validates:
//
//   - Both server endpoints are present
//   - The operator admin_id is present
//   - Duration format validity
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/opsdesk/console.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config

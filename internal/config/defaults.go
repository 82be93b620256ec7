package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Forms: FormsConfig{
			RESTRoot:       "http://localhost/wp-json",
			Detect:         "always",
			TimeoutSeconds: 30,
		},
		MCP: MCPConfig{
			ServerName: "formbridge",
		},
		Gateway: GatewayConfig{
			Enabled:            false,
			Host:               "127.0.0.1",
			Port:               8089,
			RateLimitPerMinute: 120,
			Burst:              20,
		},
		Audit: AuditConfig{
			Enabled:       false,
			DBPath:        "~/.formbridge/audit.db",
			RetentionDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

package config

// Default returns a configuration populated with workable defaults. Callers
// are expected to override the pipeline and storage sections.
func Default() Config {
	return Config{
		Pipeline: Pipeline{
			Name:                "tideflow",
			DefaultAdditionType: "harvest_upload",
			DefaultDeletionType: "delete_unharvest",
			DestPathStrategy:    "basename",
			ArchivePathStrategy: "basename",
		},
		Paths: Paths{
			IncomingDir: "/var/incoming/tideflow",
			WorkingDir:  "/var/tmp/tideflow",
			LogDir:      "/var/log/tideflow",
		},
		Resolve: Resolve{},
		Check: Check{
			Strategy: "format",
		},
		Harvest: Harvest{
			Strategy: "csv",
		},
		Notify: Notify{
			FromAddress:    "tideflow@localhost",
			SMTPHost:       "localhost",
			SMTPPort:       25,
			RequestTimeout: 10,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

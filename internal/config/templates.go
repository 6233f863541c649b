package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server":
		return serverTemplate, nil
	case "client":
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const serverTemplate = `# ftserver overrides; the listen port stays on the command line.
dir = "."
admin_addr = ""
max_connect_attempts = 12
connect_timeout = "5s"
read_timeout = "30s"
write_timeout = "30s"
backoff_initial_delay = "50ms"
backoff_multiplier = 2.0
backoff_max_delay = "1s"
backoff_jitter = true
`

const clientTemplate = `# ftclient overrides; server host/port and the command stay on the command line.
output_dir = "."
data_port = 0
connect_timeout = "5s"
read_timeout = "30s"
`

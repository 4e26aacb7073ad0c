package config

// Default configuration values.
const (
	DefaultEngine     = "bridge"
	DefaultStateFile  = ".leapmp/state.db"
	DefaultOutput     = "auto" // TTY=text, otherwise markdown
	DefaultServerAddr = "127.0.0.1:8765"
)

func defaults() map[string]any {
	return map[string]any{
		"engine.type": DefaultEngine,
		"state_path":  DefaultStateFile,
		"output":      DefaultOutput,
		"verbose":     false,
		"server.addr": DefaultServerAddr,
	}
}

package types

// Model represents a loadable checkpoint discovered on disk.
type Model struct {
	// Stable identifier for the model.
	// example: exaone-tiny
	ID string `json:"id" example:"exaone-tiny"`
	// Absolute path to the model directory or file.
	// example: /home/user/models/exaone-tiny
	Path string `json:"path" example:"/home/user/models/exaone-tiny"`
	// Backend able to serve it: native or llama.
	// example: native
	Backend string `json:"backend" example:"native"`
	// On-disk size in bytes.
	// example: 2400000000
	SizeBytes int64 `json:"size_bytes" example:"2400000000"`
}

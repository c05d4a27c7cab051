package buildinfo

// set via -ldflags at release time
var (
	Version    = "v0.3.0"
	CommitHash = "unknown"
)

type Info struct {
	About      string `json:"about,omitempty"`
	Service    string `json:"service,omitempty"`
	Version    string `json:"version,omitempty"`
	CommitHash string `json:"commit_hash,omitempty"`
}

func GetBuildInfo() Info {
	return Info{
		About:      "https://github.com/tokex-dev/tokex",
		Service:    "tokex",
		Version:    Version,
		CommitHash: CommitHash,
	}
}

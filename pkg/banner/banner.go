package banner

import (
	"fmt"
	"net/url"

	"inboxdb/pkg/config"
)

const banner = `
██╗███╗   ██╗██████╗  ██████╗ ██╗  ██╗██████╗ ██████╗
██║████╗  ██║██╔══██╗██╔═══██╗╚██╗██╔╝██╔══██╗██╔══██╗
██║██╔██╗ ██║██████╔╝██║   ██║ ╚███╔╝ ██║  ██║██████╔╝
██║██║╚██╗██║██╔══██╗██║   ██║ ██╔██╗ ██║  ██║██╔══██╗
██║██║ ╚████║██████╔╝╚██████╔╝██╔╝ ██╗██████╔╝██████╔╝
╚═╝╚═╝  ╚═══╝╚═════╝  ╚═════╝ ╚═╝  ╚═╝╚═════╝ ╚═════╝
`

// PrintWithEff prints the startup banner plus a summary of the effective
// configuration, so ops can see at a glance what the process will do.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)

	backend := "pebble"
	if eff.Config != nil && eff.Config.Storage.Backend != "" {
		backend = eff.Config.Storage.Backend
	}
	fmt.Printf("Backend:  %s\n", backend)
	switch backend {
	case "mongo":
		uri := ""
		if eff.Config != nil {
			uri = eff.Config.Storage.Mongo.URI
		}
		fmt.Printf("Mongo:    %s\n", redactURI(uri))
	default:
		fmt.Printf("DB Path:  %s\n", eff.DBPath)
	}

	if eff.Config != nil && eff.Config.Retention.Enabled {
		fmt.Printf("Retention: purge after %s (cron %q, dry-run=%v)\n",
			eff.Config.Retention.Period.Duration(),
			eff.Config.Retention.Cron,
			eff.Config.Retention.DryRun)
	} else {
		fmt.Println("Retention: disabled")
	}

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST  /v1/webhook                        - Ingest a provider payload")
	fmt.Println("GET   /v1/conversations                  - Sidebar summaries")
	fmt.Println("GET   /v1/conversations/{id}/messages    - Messages of one chat")
	fmt.Println("POST  /v1/messages                       - Store an outbound message")
	fmt.Println("PATCH /v1/messages/{id}/status           - Merge a delivery state")

	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X POST 'http://localhost%s/v1/webhook' --data @payload.json\n", addr)
	fmt.Printf("curl 'http://localhost%s/v1/conversations'\n", addr)
}

// redactURI strips credentials from a connection string before display.
func redactURI(s string) string {
	if s == "" {
		return "(not set)"
	}
	u, err := url.Parse(s)
	if err != nil {
		return "(set)"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.String()
}

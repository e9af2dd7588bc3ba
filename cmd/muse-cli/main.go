// Command muse-cli runs the shop tools without an agent.
//
// Examples:
//
//	go run ./cmd/muse-cli slug "Lancôme Trésor La Nuit EDP"
//	go run ./cmd/muse-cli variations "Lancôme Trésor La Nuit EDP"
//	go run ./cmd/muse-cli variation-id --product "Chanel Bleu EDP" --option 100ml
//	go run ./cmd/muse-cli qr "https://museperfume.vn/checkout/order-received/42/?key=wc_abc"
//	go run ./cmd/muse-cli tools --server http://localhost:8001
//
// Tool output is shaped like an MCP tool result: {"content":[...]}
package main

import (
	"os"
)

func main() {
	if err := NewApp().Execute(); err != nil {
		os.Exit(1)
	}
}

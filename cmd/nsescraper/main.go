package main

import (
	"nsemarket-backend/cmd/nsescraper/commands"
	"nsemarket-backend/lib/util/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}

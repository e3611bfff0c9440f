package main

import (
	"workday-sync/cmd/workday-sync/commands"
	"workday-sync/lib/util/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}

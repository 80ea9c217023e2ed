package main

import (
	"github.com/cychen2021/walmart-receipt-crawler/cmd/walmart-receipts/commands"
	"github.com/cychen2021/walmart-receipt-crawler/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}

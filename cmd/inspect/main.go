package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"chatfeed/pkg/archive"
	"chatfeed/pkg/logger"
)

// inspect dumps archived messages for a channel as JSON lines.
func main() {
	var (
		path    string
		channel string
		limit   int
	)
	flag.StringVar(&path, "path", "", "archive path")
	flag.StringVar(&channel, "channel", "", "channel id to dump")
	flag.IntVar(&limit, "limit", 0, "keep only the newest N messages (0 = all)")
	flag.Parse()
	if path == "" || channel == "" {
		fmt.Fprintln(os.Stderr, "--path and --channel required")
		os.Exit(2)
	}
	logger.Init("warn", "text")

	if err := archive.Open(path); err != nil {
		fmt.Fprintf(os.Stderr, "open archive: %v\n", err)
		os.Exit(1)
	}
	defer archive.Close()

	msgs, err := archive.ListChannel(channel, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list channel: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, m := range msgs {
		_ = enc.Encode(m)
	}
	fmt.Fprintf(os.Stderr, "%d messages\n", len(msgs))
}

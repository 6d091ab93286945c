//nolint:errcheck,forbidigo,gosec // test utility allows simpler error handling and direct output
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
)

// Serves a saved copy of the concert page so the bot can be pointed at
// localhost (SCHEDULE_URL) during development.
func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Println("Usage: testserver [options] <schedule-page.html>")
		fmt.Println("\nOptions:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	pagePath := args[0]
	if _, err := os.Stat(pagePath); os.IsNotExist(err) {
		log.Fatalf("Schedule page file does not exist: %s", pagePath)
	}

	http.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		content, err := os.ReadFile(pagePath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to read file: %v", err), http.StatusInternalServerError)
			log.Printf("Error reading %s: %v", pagePath, err)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(content)
		log.Printf("Served %s (%d bytes)", pagePath, len(content))
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Test server listening on %s", addr)
	log.Printf("Schedule page: %s -> http://localhost%s/", pagePath, addr)
	log.Println("The file is read on each request, so you can edit it while the server is running.")

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// Package lang holds the user-facing message catalog. English defaults
// are built in; a YAML file of key: text pairs can override any of
// them. Placeholders are written {name} and filled by T.
package lang

import (
	"log"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var defaults = map[string]string{
	"panel_title":       "🎫 Ticket System",
	"panel_body":        "Click the button below to create a new support ticket!",
	"panel_button":      "Create Ticket",
	"select_category":   "Select a category for your ticket:",
	"ticket_created":    "✅ Your ticket has been created! Please check <#{channel}> for more information.",
	"ticket_failed":     "❌ There was an error creating your ticket. Please try again later.",
	"invalid_input":     "❌ Subject and description are required (max 100 and 1000 characters).",
	"not_ticket":        "❌ This command can only be used in ticket channels.",
	"missing_record":    "❌ Unable to find ticket information.",
	"missing_log":       "❌ Unable to find ticket log message.",
	"unauthorized":      "❌ You do not have permission to close this ticket. Only the ticket creator or staff members can close tickets.",
	"already_closing":   "⏳ This ticket is already being closed.",
	"close_failed":      "❌ There was an error closing this ticket.",
	"no_open_tickets":   "No open tickets.",
	"open_tickets_head": "**Open Tickets** ({count}):",
}

var (
	mu       sync.RWMutex
	messages = defaults
)

// Load reads overrides from a YAML file. A missing file keeps the
// defaults; a malformed one is fatal since it means a broken deploy.
func Load(path string) {
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[lang] Could not read %s: %v — using built-in messages", path, err)
		return
	}

	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		log.Fatalf("[lang] Failed to parse %s: %v", path, err)
	}

	merged := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}

	mu.Lock()
	messages = merged
	mu.Unlock()

	log.Printf("[lang] Loaded %d overrides from %s", len(overrides), path)
}

// T looks up a message and substitutes {placeholder} pairs, given as
// alternating name, value arguments.
func T(key string, pairs ...string) string {
	mu.RLock()
	s, ok := messages[key]
	mu.RUnlock()

	if !ok {
		return "{" + key + "}"
	}
	for j := 0; j+1 < len(pairs); j += 2 {
		s = strings.ReplaceAll(s, "{"+pairs[j]+"}", pairs[j+1])
	}
	return s
}

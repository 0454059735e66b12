package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"spscan/domain/jobs"
	"spscan/logging"
)

// SSEClient represents a connected Server-Sent Events client.
type SSEClient struct {
	id       string
	writer   http.ResponseWriter
	flusher  http.Flusher
	done     chan struct{}
	lastSent time.Time
}

// SSEManager manages Server-Sent Events connections and real-time broadcasting.
// Streams job status updates and scan completions to connected clients.
type SSEManager struct {
	clients map[string]*SSEClient
	mu      sync.RWMutex
	logger  *logging.Logger
}

// NewSSEManager creates a new SSE connection manager with cleanup routines.
func NewSSEManager() *SSEManager {
	manager := &SSEManager{
		clients: make(map[string]*SSEClient),
		logger:  logging.Default().WithComponent("sse_manager"),
	}

	// Start cleanup routine for stale connections
	go manager.cleanupRoutine()

	return manager
}

// AddClient adds a new SSE client connection
func (s *SSEManager) AddClient(clientID string, w http.ResponseWriter) *SSEClient {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("Response writer does not support flushing")
		return nil
	}

	// Immediate flush to establish connection
	flusher.Flush()

	client := &SSEClient{
		id:       clientID,
		writer:   w,
		flusher:  flusher,
		done:     make(chan struct{}),
		lastSent: time.Now(),
	}

	s.mu.Lock()
	s.clients[clientID] = client
	s.mu.Unlock()

	s.logger.Info("SSE client connected", "client_id", clientID, "total_clients", len(s.clients))

	// Send initial connection message as a comment
	s.sendToClient(client, "connected", fmt.Sprintf("Connected client %s", clientID))

	return client
}

// RemoveClient removes an SSE client connection
func (s *SSEManager) RemoveClient(clientID string) {
	s.mu.Lock()
	client, exists := s.clients[clientID]
	if exists {
		delete(s.clients, clientID)
	}
	s.mu.Unlock()

	if exists {
		// Close channel outside of lock to prevent double-close panic
		select {
		case <-client.done:
			// Already closed
		default:
			close(client.done)
		}
		s.logger.Info("SSE client disconnected", "client_id", clientID)
	}
}

// snapshotClients copies the client list so broadcasts never hold the
// lock during I/O.
func (s *SSEManager) snapshotClients() map[string]*SSEClient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clientList := make(map[string]*SSEClient, len(s.clients))
	for id, client := range s.clients {
		clientList[id] = client
	}
	return clientList
}

// BroadcastJobUpdate broadcasts a job status update to all connected clients
func (s *SSEManager) BroadcastJobUpdate(jobID string, data string) {
	clientList := s.snapshotClients()

	event := fmt.Sprintf("job:%s:updated", jobID)
	failedClients := []string{}

	for clientID, client := range clientList {
		if err := s.sendToClient(client, event, data); err != nil {
			s.logger.Warn("Failed to send job update to client",
				"client_id", clientID,
				"job_id", jobID,
				"error", err)
			failedClients = append(failedClients, clientID)
		}
	}

	// Remove failed clients after broadcasting
	for _, clientID := range failedClients {
		s.RemoveClient(clientID)
	}

	s.logger.Debug("Broadcasted job update", "job_id", jobID, "clients", len(clientList))
}

// BroadcastJobListUpdate broadcasts that the job list has changed
func (s *SSEManager) BroadcastJobListUpdate() {
	clientList := s.snapshotClients()
	if len(clientList) == 0 {
		s.logger.Debug("No SSE clients connected, skipping job list update broadcast")
		return
	}

	successCount := 0
	failedClients := []string{}
	message := `{"action": "refresh", "timestamp": "` + time.Now().Format(time.RFC3339) + `"}`

	for clientID, client := range clientList {
		if err := s.sendToClient(client, "jobs-updated", message); err != nil {
			s.logger.Warn("Failed to send job list update to client",
				"client_id", clientID,
				"error", err)
			failedClients = append(failedClients, clientID)
		} else {
			successCount++
		}
	}

	// Remove failed clients after broadcasting
	for _, clientID := range failedClients {
		s.RemoveClient(clientID)
	}

	s.logger.Info("Broadcasted job list update",
		"total_clients", len(clientList),
		"successful", successCount,
		"failed", len(failedClients))
}

// BroadcastScanCompleted notifies clients that a site scan finished
// and its report is available.
func (s *SSEManager) BroadcastScanCompleted(siteURL, reportID string) {
	clientList := s.snapshotClients()
	if len(clientList) == 0 {
		s.logger.Debug("No SSE clients connected, skipping scan completed broadcast")
		return
	}

	payload, err := json.Marshal(map[string]string{
		"site_url":  siteURL,
		"report_id": reportID,
		"timestamp": time.Now().Format(time.RFC3339),
	})
	if err != nil {
		s.logger.Error("Failed to encode scan completed payload", "error", err)
		return
	}

	failedClients := []string{}
	for clientID, client := range clientList {
		if err := s.sendToClient(client, "scan-completed", string(payload)); err != nil {
			s.logger.Warn("Failed to send scan completed to client",
				"client_id", clientID,
				"site_url", siteURL,
				"error", err)
			failedClients = append(failedClients, clientID)
		}
	}

	// Remove failed clients after broadcasting
	for _, clientID := range failedClients {
		s.RemoveClient(clientID)
	}

	s.logger.Info("Broadcasted scan completed",
		"site_url", siteURL,
		"report_id", reportID,
		"total_clients", len(clientList))
}

// NotifyUpdate implements UpdateNotifier interface
func (s *SSEManager) NotifyUpdate() {
	s.BroadcastJobListUpdate()
}

// NotifyJobUpdate implements UpdateNotifier interface for job-specific updates
func (s *SSEManager) NotifyJobUpdate(jobID string, job *jobs.Job) {
	// Broadcast the general list update; ListAllJobs includes live progress
	s.BroadcastJobListUpdate()
}

// sendToClient sends an SSE message to a specific client
func (s *SSEManager) sendToClient(client *SSEClient, event, data string) error {
	select {
	case <-client.done:
		return fmt.Errorf("client connection closed")
	default:
	}

	var message string
	if event == "keepalive" || event == "connected" {
		// Housekeeping events go out as comments
		message = fmt.Sprintf(": %s\n\n", data)
	} else {
		message = fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
	}

	_, err := client.writer.Write([]byte(message))
	if err != nil {
		return fmt.Errorf("write error: %w", err)
	}

	client.flusher.Flush()
	client.lastSent = time.Now()

	return nil
}

// SendKeepAlive sends keep-alive messages to all clients
func (s *SSEManager) SendKeepAlive() {
	clientList := s.snapshotClients()

	failedClients := []string{}
	for clientID, client := range clientList {
		if err := s.sendToClient(client, "keepalive", `{"timestamp": "`+time.Now().Format(time.RFC3339)+`"}`); err != nil {
			s.logger.Debug("Keep-alive failed, removing client", "client_id", clientID)
			failedClients = append(failedClients, clientID)
		}
	}

	// Remove failed clients after keep-alive
	for _, clientID := range failedClients {
		s.RemoveClient(clientID)
	}
}

// CloseAll disconnects every client. Called during shutdown.
func (s *SSEManager) CloseAll() {
	clientList := s.snapshotClients()
	for clientID := range clientList {
		s.RemoveClient(clientID)
	}
	s.logger.Info("Closed all SSE connections", "count", len(clientList))
}

// cleanupRoutine periodically cleans up stale connections
func (s *SSEManager) cleanupRoutine() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.SendKeepAlive()

		// Remove clients that haven't received messages in a while
		s.mu.Lock()
		staleThreshold := time.Now().Add(-2 * time.Minute)
		staleClients := []string{}
		for clientID, client := range s.clients {
			if client.lastSent.Before(staleThreshold) {
				s.logger.Info("Removing stale SSE client", "client_id", clientID)
				staleClients = append(staleClients, clientID)
			}
		}
		s.mu.Unlock()

		// Remove stale clients outside of lock
		for _, clientID := range staleClients {
			s.RemoveClient(clientID)
		}
	}
}

// HandleSSEConnection handles the SSE endpoint
func (s *SSEManager) HandleSSEConnection(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("SSE connection attempt",
		"method", r.Method,
		"path", r.URL.Path,
		"query", r.URL.RawQuery)

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = fmt.Sprintf("client_%d", time.Now().UnixNano())
	}

	client := s.AddClient(clientID, w)
	if client == nil {
		s.logger.Error("Failed to establish SSE connection", "client_id", clientID)
		http.Error(w, "Failed to establish SSE connection", http.StatusInternalServerError)
		return
	}

	// Send initial keep-alive immediately
	if err := s.sendToClient(client, "keepalive", fmt.Sprintf("Connection established at %s", time.Now().Format(time.RFC3339))); err != nil {
		s.logger.Error("Failed to send initial keep-alive", "client_id", clientID, "error", err)
		s.RemoveClient(clientID)
		return
	}

	// Keep connection alive until client disconnects
	ctx := r.Context()

	// Wait for client disconnect - global cleanup routine handles keep-alives
	select {
	case <-ctx.Done():
		s.logger.Info("SSE client context cancelled", "client_id", clientID)
		s.RemoveClient(clientID)
		return
	case <-client.done:
		s.logger.Info("SSE client connection closed", "client_id", clientID)
		s.RemoveClient(clientID)
		return
	}
}

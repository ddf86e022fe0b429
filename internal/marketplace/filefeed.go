package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"leadpilot_backend/platform/apperr"
	"leadpilot_backend/platform/logger"
)

// FileFeed is a file-backed marketplace used when no API credentials are
// configured: leads and messages live in local JSON files. Replies are
// appended to the messages file so a run leaves an inspectable trace.
type FileFeed struct {
	leadsPath    string
	messagesPath string
	log          *logger.Logger
	mu           sync.Mutex
}

// NewFileFeed creates a feed over the given JSON files. Missing files are
// treated as empty feeds.
func NewFileFeed(leadsPath, messagesPath string, log *logger.Logger) *FileFeed {
	return &FileFeed{
		leadsPath:    leadsPath,
		messagesPath: messagesPath,
		log:          log,
	}
}

// FetchNewLeads returns every lead in the file still marked "new".
func (f *FileFeed) FetchNewLeads(_ context.Context) ([]Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.readLeads()
	if err != nil {
		return nil, err
	}

	fresh := make([]Lead, 0, len(all))
	for _, lead := range all {
		if lead.Status == StatusNew {
			fresh = append(fresh, lead)
		}
	}
	return fresh, nil
}

// FetchNewMessages returns customer messages from the file.
func (f *FileFeed) FetchNewMessages(_ context.Context) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.readMessages()
	if err != nil {
		return nil, err
	}

	inbound := make([]Message, 0, len(all))
	for _, msg := range all {
		if msg.Sender == SenderCustomer {
			inbound = append(inbound, msg)
		}
	}
	return inbound, nil
}

// SendMessage appends a business reply to the messages file.
func (f *FileFeed) SendMessage(_ context.Context, leadID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.readMessages()
	if err != nil {
		return err
	}

	all = append(all, Message{
		ID:      "msg_" + uuid.NewString(),
		LeadID:  leadID,
		Sender:  SenderBusiness,
		Content: text,
		SentAt:  time.Now(),
	})

	return f.writeJSON(f.messagesPath, all)
}

// UpdateLeadStatus rewrites the lead's status in the leads file.
func (f *FileFeed) UpdateLeadStatus(_ context.Context, leadID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.readLeads()
	if err != nil {
		return err
	}

	for i := range all {
		if all[i].ID == leadID {
			all[i].Status = status
			return f.writeJSON(f.leadsPath, all)
		}
	}

	f.log.Warn("lead not found in feed file", "lead_id", leadID)
	return nil
}

func (f *FileFeed) readLeads() ([]Lead, error) {
	var leads []Lead
	if err := f.readJSON(f.leadsPath, &leads); err != nil {
		return nil, err
	}
	return leads, nil
}

func (f *FileFeed) readMessages() ([]Message, error) {
	var messages []Message
	if err := f.readJSON(f.messagesPath, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (f *FileFeed) readJSON(path string, out any) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return apperr.Transient("read feed file "+path, err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Permanent(fmt.Sprintf("malformed feed file %s", path), err)
	}
	return nil
}

func (f *FileFeed) writeJSON(path string, value any) error {
	raw, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return apperr.Internal("marshal feed file", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return apperr.Transient("write feed file "+path, err)
	}
	return nil
}

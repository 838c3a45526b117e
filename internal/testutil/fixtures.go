package testutil

import (
	"fmt"
	"time"

	"github.com/sentience/sentience/internal/core"
)

// FileFixture creates an uploaded-file record named name.
func FileFixture(name, content string) *core.FileRecord {
	return &core.FileRecord{
		Name:       name,
		Type:       "text/plain",
		Content:    content,
		Size:       int64(len(content)),
		UploadedAt: time.Now(),
	}
}

// ExchangeFixture returns n alternating user/assistant turns numbered
// from zero, oldest first.
func ExchangeFixture(n int) []core.Turn {
	turns := make([]core.Turn, 0, 2*n)
	at := time.Now().Add(-time.Duration(n) * time.Minute)
	for i := 0; i < n; i++ {
		turns = append(turns,
			core.Turn{Role: core.RoleUser, Content: fmt.Sprintf("question %d", i), CreatedAt: at},
			core.Turn{Role: core.RoleAssistant, Content: fmt.Sprintf("answer %d", i), CreatedAt: at},
		)
		at = at.Add(time.Minute)
	}
	return turns
}

// VaultFixture creates a vault note.
func VaultFixture(title string, tags ...string) *core.VaultItem {
	if tags == nil {
		tags = []string{}
	}
	return &core.VaultItem{
		Type:    core.VaultNote,
		Title:   title,
		Content: "content of " + title,
		Tags:    tags,
	}
}

package blobstore

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// EmbedCap is the byte threshold under which tool.result content is
// embedded directly rather than offloaded (spec.md §4.5, 10 KiB
// default). Callers normally pass config.Config.ToolResultEmbedCap here
// instead of this constant.
const EmbedCap = 10 * 1024

// OffloadResult is what the tool-event handler persists onto the durable
// tool.result event in place of the raw content.
type OffloadResult struct {
	Content   string
	Truncated bool
	BlobID    string
}

// Offload applies the truncation-and-pointer policy: content at or under
// capBytes is embedded verbatim; larger content is stored as a blob and
// the persisted event carries a truncated prefix plus a retrieval
// pointer, while streaming clients separately receive the untruncated
// content before this call (spec.md §4.5 — deferred-truncation contract).
func (s *Store) Offload(ctx context.Context, content []byte, mimeType string, capBytes int) (OffloadResult, error) {
	if capBytes <= 0 {
		capBytes = EmbedCap
	}
	if len(content) <= capBytes {
		return OffloadResult{Content: string(content)}, nil
	}

	blobID, err := s.Store(ctx, content, mimeType)
	if err != nil {
		return OffloadResult{}, err
	}

	// Back off to the nearest rune boundary at or before capBytes so the
	// truncated prefix never ends mid-character.
	cut := capBytes
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	truncated := content[:cut]
	notice := fmt.Sprintf(
		"\n\n... [truncated %d bytes → %s]\n[Use Remember tool with action \"read_blob\" and blob_id \"%s\" to retrieve full content]",
		len(content)-cut, blobID, blobID,
	)

	return OffloadResult{
		Content:   string(truncated) + notice,
		Truncated: true,
		BlobID:    blobID,
	}, nil
}

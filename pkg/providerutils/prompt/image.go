package prompt

import (
	"context"

	"github.com/intrafind/llm-gateway/pkg/internal/media"
	"github.com/intrafind/llm-gateway/pkg/provider/types"
)

// Downloader fetches the bytes at url, bounded by whatever size limit the
// caller configured. Satisfied by ai.DownloadFunction without importing
// pkg/ai here (prompt is a leaf package consumed by every adapter).
type Downloader func(ctx context.Context, url string) ([]byte, error)

// ResolveImages returns a copy of messages where every ImageContent part
// that carries only a URL (Anthropic and Google require inline base64, §4.2
// "adapters normalize between the two per vendor formatting rules") has been
// fetched and filled in with Image bytes and a detected MimeType. Parts that
// already carry inline data, or that fail to download, pass through
// unchanged — a failed fetch degrades to whatever the vendor does with an
// empty image block rather than aborting the whole request.
func ResolveImages(ctx context.Context, messages []types.Message, download Downloader) []types.Message {
	if download == nil {
		return messages
	}

	out := make([]types.Message, len(messages))
	for i, msg := range messages {
		out[i] = msg
		var resolved []types.ContentPart
		changed := false
		for _, part := range msg.Content {
			img, ok := part.(types.ImageContent)
			if !ok || img.URL == "" || len(img.Image) > 0 {
				resolved = append(resolved, part)
				continue
			}

			data, err := download(ctx, img.URL)
			if err != nil {
				resolved = append(resolved, part)
				continue
			}
			mimeType := img.MimeType
			if mimeType == "" {
				mimeType = media.DetectImageMediaType(data)
			}
			resolved = append(resolved, types.ImageContent{Image: data, MimeType: mimeType, URL: img.URL})
			changed = true
		}
		if changed {
			out[i].Content = resolved
		}
	}
	return out
}

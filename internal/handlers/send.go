package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nugget/herald/internal/command"
	"github.com/nugget/herald/internal/platform"
)

func msgPrefixSpec(deps Deps) command.PrefixSpec {
	return command.PrefixSpec{
		Word:        "msg",
		Description: "Send a plain message to this channel",
		Handler: func(ctx context.Context, msg platform.Message, rest string, r command.Responder) error {
			return sendContent(ctx, deps, r, msg.ChannelID, rest, nil)
		},
	}
}

func filePrefixSpec(deps Deps) command.PrefixSpec {
	return command.PrefixSpec{
		Word:        "file",
		Description: "Send files from the data directory",
		Handler: func(ctx context.Context, msg platform.Message, rest string, r command.Responder) error {
			return sendContent(ctx, deps, r, msg.ChannelID, "", strings.Fields(rest))
		},
	}
}

func sendPrefixSpec(deps Deps) command.PrefixSpec {
	return command.PrefixSpec{
		Word:        "send",
		Description: "Send a file with a caption",
		Handler: func(ctx context.Context, msg platform.Message, rest string, r command.Responder) error {
			path, caption, _ := strings.Cut(rest, " ")
			var paths []string
			if path != "" {
				paths = []string{path}
			}
			return sendContent(ctx, deps, r, msg.ChannelID, strings.TrimSpace(caption), paths)
		},
	}
}

// sendContent delivers text plus any readable files in one message.
// Unreadable files are skipped with a warning; when nothing at all is
// left to send the user gets a notice instead of a silent no-op.
func sendContent(ctx context.Context, deps Deps, r command.Responder, channelID, text string, paths []string) error {
	var files []platform.File
	for _, p := range paths {
		full := p
		if !filepath.IsAbs(full) {
			full = filepath.Join(deps.DataDir, full)
		}
		data, err := os.ReadFile(full)
		if err != nil {
			deps.Logger.Warn("skipping unreadable file", "path", p, "error", err)
			continue
		}
		files = append(files, platform.File{Name: filepath.Base(full), Data: data})
	}

	if text == "" && len(files) == 0 {
		return r.Reply(ctx, "Nothing to send.")
	}
	if err := deps.Gateway.SendMessage(ctx, channelID, text, files); err != nil {
		return fmt.Errorf("send content: %w", err)
	}
	return nil
}

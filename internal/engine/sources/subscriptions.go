package sources

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// ParseSubscriptionsCSV extracts channel IDs from a Google Takeout
// subscriptions.csv ("Channel Id,Channel Url,Channel Title"). Rows may also
// carry only a channel URL. IDs are returned in file order without duplicates.
func ParseSubscriptionsCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	idCol, urlCol := 0, -1
	var ids []string
	seen := make(map[string]bool)
	for line := 0; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("subscriptions csv: %w", err)
		}
		if line == 0 && isHeader(rec) {
			idCol, urlCol = -1, -1
			for i, h := range rec {
				switch normHeader(h) {
				case "channelid":
					idCol = i
				case "channelurl":
					urlCol = i
				}
			}
			continue
		}
		id := ""
		if idCol >= 0 && idCol < len(rec) {
			id = ChannelIDFrom(rec[idCol])
		}
		if id == "" && urlCol >= 0 && urlCol < len(rec) {
			id = ChannelIDFrom(rec[urlCol])
		}
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

func normHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(h), " ", ""))
}

func isHeader(rec []string) bool {
	for _, h := range rec {
		switch normHeader(h) {
		case "channelid", "channelurl":
			return true
		}
	}
	return false
}

// ChannelIDFrom extracts a channel ID from a bare ID or a /channel/<id> URL.
// It returns "" when s carries neither.
func ChannelIDFrom(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
	if channelIDRE.MatchString(s) {
		return s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "channel" && channelIDRE.MatchString(parts[1]) {
		return parts[1]
	}
	return ""
}

// ChannelRef resolves user input to a reference Channel accepts: a channel
// ID or an @handle, given bare or as a youtube.com URL
// (/channel/<id>, /@handle, /@handle/videos). It returns "" otherwise.
func ChannelRef(s string) string {
	if id := ChannelIDFrom(s); id != "" {
		return id
	}
	s = strings.TrimSpace(s)
	if handleRE.MatchString(s) {
		return s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	for _, seg := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if strings.HasPrefix(seg, "@") {
			if handleRE.MatchString(seg) {
				return seg
			}
			return ""
		}
	}
	return ""
}

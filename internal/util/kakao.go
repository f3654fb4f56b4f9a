package util

import "strings"

const (
	KakaoSeeMorePadding = 500
	KakaoZeroWidthSpace = "\u200b"

	// SeeMoreLines is the list length past which replies get folded.
	SeeMoreLines = 6
)

// FoldLongReply keeps header visible and hides body behind KakaoTalk's
// "see more" fold when body has more than SeeMoreLines lines. Short bodies
// are joined to the header with a newline.
func FoldLongReply(header, body string) string {
	header = strings.TrimSpace(header)
	body = strings.TrimRight(body, "\n")
	if body == "" {
		return header
	}
	if strings.Count(body, "\n")+1 <= SeeMoreLines {
		if header == "" {
			return body
		}
		return header + "\n" + body
	}
	return ApplyKakaoSeeMorePadding(StripLeadingHeader(body, header), header)
}

// ApplyKakaoSeeMorePadding puts instruction on the first line and pushes text
// below the fold with zero-width spaces.
func ApplyKakaoSeeMorePadding(text, instruction string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	message := strings.TrimSpace(instruction)

	var b strings.Builder
	b.Grow(len(text) + KakaoSeeMorePadding*len(KakaoZeroWidthSpace) + len(message) + 1)
	b.WriteString(message)
	b.WriteString(strings.Repeat(KakaoZeroWidthSpace, KakaoSeeMorePadding))
	if !strings.HasPrefix(text, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(text)
	return b.String()
}

// StripLeadingHeader drops header from the start of text when it repeats.
func StripLeadingHeader(text, header string) string {
	if strings.TrimSpace(text) == "" || strings.TrimSpace(header) == "" {
		return text
	}
	for _, sep := range []string{"\r\n\r\n", "\n\n", "\r\n", "\n", ""} {
		if strings.HasPrefix(text, header+sep) {
			return strings.TrimPrefix(text, header+sep)
		}
	}
	return text
}

package handler

import "strconv"

// multipart framing allowance on top of the file size limit
const multipartOverhead = 1 << 20

// formatUploadLimit renders a byte limit in whole MB, or KB below one MB.
func formatUploadLimit(limit int64) string {
	const kb, mb = 1 << 10, 1 << 20
	switch {
	case limit >= mb:
		return strconv.FormatInt(limit/mb, 10) + "MB"
	case limit >= kb:
		return strconv.FormatInt(limit/kb, 10) + "KB"
	default:
		return strconv.FormatInt(limit, 10) + "B"
	}
}

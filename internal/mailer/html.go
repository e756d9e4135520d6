package mailer

import (
	"fmt"
	"strings"
)

// imageTagStyle matches the styling the editor applies when the admin
// drops an image into the body, so appended and hand-placed images
// render identically.
const imageTagStyle = "max-width:100%; width:400px; height:auto; display:block; margin:12px 0;"

// AppendImageTag appends an <img> block referencing imageURL to html,
// unless the URL already appears somewhere in the document. The
// containment check is a plain case-sensitive substring match, which is
// enough to avoid double insertion when the editor already embedded the
// same image.
func AppendImageTag(html, imageURL string) string {
	if imageURL == "" || strings.Contains(html, imageURL) {
		return html
	}
	return html + fmt.Sprintf(`<p><img src=%q style=%q /></p>`, imageURL, imageTagStyle)
}

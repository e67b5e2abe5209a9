// Package appfs embeds the files the app ships with: database migrations, email templates and
// the common passwords list used by the password policy.
package appfs

import "embed"

//go:embed migrations templates common-passwords.txt.gz
var FS embed.FS

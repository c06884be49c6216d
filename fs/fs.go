// Package appfs embeds the database migrations, email templates & data files of the app.
package appfs

import "embed"

const (
	MigrationsDir       = "migrations"
	EmailTemplatesDir   = "templates/email"
	CommonPasswordsFile = "data/common-passwords.txt.gz"
)

//go:embed migrations/*.sql templates/email/* data/*
var FS embed.FS

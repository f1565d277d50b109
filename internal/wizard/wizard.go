// Package wizard interactively builds a configuration file.
package wizard

import (
	"fmt"
	"strings"

	"atlasbackup/internal/config"

	"github.com/charmbracelet/huh"
)

// Answers holds the raw values typed by the user
type Answers struct {
	HostURL            string
	UserEmail          string
	APIToken           string
	IncludeAttachments bool
	DownloadLocally    bool
	BackupDir          string
	UploadToS3         bool
	Bucket             string
	AccessKey          string
	SecretKey          string
	Region             string
	Endpoint           string
	Prefix             string
}

// Config converts the answers into a configuration, keeping defaults for
// anything not asked. Values are taken as typed.
func (a Answers) Config() *config.Config {
	cfg := config.Default()

	cfg.HostURL = strings.TrimSpace(a.HostURL)
	cfg.UserEmail = strings.TrimSpace(a.UserEmail)
	cfg.APIToken = strings.TrimSpace(a.APIToken)
	cfg.IncludeAttachments = a.IncludeAttachments
	cfg.DownloadLocally = a.DownloadLocally
	if dir := strings.TrimSpace(a.BackupDir); dir != "" {
		cfg.BackupDir = dir
	}

	if a.UploadToS3 {
		cfg.UploadToS3.Bucket = strings.TrimSpace(a.Bucket)
		cfg.UploadToS3.AccessKey = strings.TrimSpace(a.AccessKey)
		cfg.UploadToS3.SecretKey = strings.TrimSpace(a.SecretKey)
		cfg.UploadToS3.Region = strings.TrimSpace(a.Region)
		cfg.UploadToS3.Prefix = strings.TrimSpace(a.Prefix)
		if ep := strings.TrimSpace(a.Endpoint); ep != "" {
			cfg.UploadToS3.Endpoint = ep
		}
	}

	return cfg
}

func mainForm(a *Answers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Atlassian host (e.g. acme.atlassian.net): ").Value(&a.HostURL).Inline(true).Prompt(""),
			huh.NewInput().Title("Account email: ").Value(&a.UserEmail).Inline(true).Prompt(""),
			huh.NewInput().Title("API token: ").Value(&a.APIToken).EchoMode(huh.EchoModePassword).Inline(true).Prompt(""),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Include attachments?").Value(&a.IncludeAttachments),
			huh.NewConfirm().Title("Download the backup locally?").Value(&a.DownloadLocally),
			huh.NewInput().Title("Local backup directory: ").Placeholder("./backups").Value(&a.BackupDir).Inline(true).Prompt(""),
			huh.NewConfirm().Title("Upload the backup to S3?").Value(&a.UploadToS3),
		),
	).WithTheme(huh.ThemeBase16())
}

func s3Form(a *Answers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("S3 bucket: ").Value(&a.Bucket).Inline(true).Prompt(""),
			huh.NewInput().Title("Key prefix: ").Placeholder("atlassian/").Value(&a.Prefix).Inline(true).Prompt(""),
			huh.NewInput().Title("Access key (empty for ambient credentials): ").Value(&a.AccessKey).Inline(true).Prompt(""),
			huh.NewInput().Title("Secret key: ").Value(&a.SecretKey).EchoMode(huh.EchoModePassword).Inline(true).Prompt(""),
			huh.NewInput().Title("Region: ").Value(&a.Region).Inline(true).Prompt(""),
			huh.NewInput().Title("Endpoint: ").Placeholder("s3.amazonaws.com").Value(&a.Endpoint).Inline(true).Prompt(""),
		),
	).WithTheme(huh.ThemeBase16())
}

// Ask runs the interactive forms
func Ask() (Answers, error) {
	a := Answers{DownloadLocally: true}

	if err := mainForm(&a).Run(); err != nil {
		return a, err
	}
	if a.UploadToS3 {
		if err := s3Form(&a).Run(); err != nil {
			return a, err
		}
	}

	return a, nil
}

// Run asks for every setting and writes the configuration to path
func Run(path string) error {
	a, err := Ask()
	if err != nil {
		return fmt.Errorf("wizard aborted: %w", err)
	}

	if err := config.Save(path, a.Config()); err != nil {
		return err
	}

	fmt.Printf("Configuration saved to %s\n", path)
	return nil
}

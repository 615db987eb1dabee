package cmd

import (
	"github.com/molt-dev/molt/internal/channel"
	"github.com/molt-dev/molt/pkg/update"
)

// agentConfig maps the loaded config file onto an update agent config. The
// CLI always uses the GitHub channel client; embedding applications supply
// their own factory.
func agentConfig() update.Config {
	return update.Config{
		AppName:          cfg.App(),
		CurrentVersion:   buildVersion,
		MetadataURL:      cfg.MetadataURL,
		DownloadURL:      cfg.DownloadURL,
		UpdaterName:      cfg.Updater.Name,
		Factory:          channel.New,
		PurgeOldArchives: cfg.PurgeOldArchives,
	}
}

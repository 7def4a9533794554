package store

import (
	"context"
	"path/filepath"

	"github.com/haskellpkg/hpkg/commands"
	"github.com/haskellpkg/hpkg/config"
	"github.com/spf13/viper"
)

type Viper struct {
	cacheDir   string
	noAutosync bool
}

func NewViper(cacheDir string, noAutosync bool) *Viper {
	return &Viper{
		cacheDir:   cacheDir,
		noAutosync: noAutosync,
	}
}

const configKeyIndexGitURL = "index.git-url"
const configKeyIndexArchiveURL = "index.archive-url"
const configKeyAutosync = "autosync"

func (vc *Viper) Init(cfgFile string) error {
	viper.SetConfigFile(cfgFile)
	return viper.ReadInConfig()
}

func (vc *Viper) Load(ctx context.Context) (*commands.Config, error) {
	result := commands.Config{}

	if vc.cacheDir == "" {
		var err error
		result.StorePath, err = config.StorePath()
		if err != nil {
			return nil, err
		}
		result.IndexPath, err = config.IndexPath()
		if err != nil {
			return nil, err
		}
	} else {
		result.StorePath = filepath.Join(vc.cacheDir, "store")
		result.IndexPath = filepath.Join(vc.cacheDir, "index")
	}

	if viper.IsSet(configKeyIndexGitURL) {
		result.IndexGitURL = viper.GetString(configKeyIndexGitURL)
	}
	if viper.IsSet(configKeyIndexArchiveURL) {
		result.IndexArchiveURL = viper.GetString(configKeyIndexArchiveURL)
	}

	if vc.noAutosync {
		sync := false
		result.Autosync = &sync
	} else if viper.IsSet(configKeyAutosync) {
		sync := viper.GetBool(configKeyAutosync)
		result.Autosync = &sync
	}

	return &result, nil
}

func (vc *Viper) Store(ctx context.Context, cfg *commands.Config) error {
	if cfg.Autosync != nil {
		viper.Set(configKeyAutosync, *cfg.Autosync)
	}
	if cfg.IndexGitURL != "" {
		viper.Set(configKeyIndexGitURL, cfg.IndexGitURL)
	}
	if cfg.IndexArchiveURL != "" {
		viper.Set(configKeyIndexArchiveURL, cfg.IndexArchiveURL)
	}
	return viper.WriteConfig()
}

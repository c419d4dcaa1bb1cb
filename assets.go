package voxtrace

import (
	"github.com/google/uuid"
)

type AssetId string

type VoxAsset struct {
	version uint
	path    string
	file    *VoxFile
}

// AssetServer owns parsed voxel models so callers can re-import them after a
// world reset without touching the filesystem again.
type AssetServer struct {
	models map[AssetId]VoxAsset
}

func NewAssetServer() *AssetServer {
	return &AssetServer{
		models: make(map[AssetId]VoxAsset),
	}
}

// LoadVoxModel parses a .vox file and registers it under a fresh asset id.
func (server *AssetServer) LoadVoxModel(filename string) (AssetId, error) {
	vf, err := LoadVoxFile(filename)
	if err != nil {
		return "", err
	}
	id := makeAssetId()
	server.models[id] = VoxAsset{
		version: 0,
		path:    filename,
		file:    vf,
	}
	return id, nil
}

// VoxModel returns the parsed model for an id, or nil when unknown.
func (server *AssetServer) VoxModel(id AssetId) *VoxFile {
	if asset, ok := server.models[id]; ok {
		return asset.file
	}
	return nil
}

func makeAssetId() AssetId {
	return AssetId(uuid.NewString())
}

package assets

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/metadata"
)

type AssetType int

const (
	AssetTypeNone AssetType = iota
	// A .shadercfg TOML manifest.
	AssetTypeShaderManifest
	// A WGSL source file.
	AssetTypeShaderSource
	// Precompiled bytecode for one of the drivers.
	AssetTypeShaderBytecode
)

// ManifestExtension is the extension of shader manifests.
const ManifestExtension = ".shadercfg"

type AssetInfo struct {
	Path       string
	Type       AssetType
	LastLoaded time.Time
}

// AssetManager indexes the shader directory and, when watching, reports
// changed files as EVENT_CODE_SHADER_SOURCE_CHANGED for every shader built
// from them.
type AssetManager struct {
	root   string
	loader *ShaderLoader
	events *core.EventSystem

	mutex  sync.RWMutex
	assets map[string]AssetInfo
	// dependents maps a file to the names of the shaders loaded from it.
	dependents map[string][]string

	fsnotify *fsnotify.Watcher
	isClosed bool
	done     chan struct{}
	stopped  chan struct{}
}

func NewAssetManager(driver metadata.Driver, events *core.EventSystem) *AssetManager {
	return &AssetManager{
		loader:     &ShaderLoader{Driver: driver},
		events:     events,
		assets:     make(map[string]AssetInfo),
		dependents: make(map[string][]string),
	}
}

// Initialize indexes dir and all of its sub-directories. With watch set,
// changes are tracked until Shutdown.
func (am *AssetManager) Initialize(dir string, watch bool) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	s, err := os.Stat(root)
	if err != nil {
		return core.NewConfigurationError("shaders.dir", "%s", err)
	}
	if !s.IsDir() {
		return core.NewConfigurationError("shaders.dir", "%s is not a directory", dir)
	}
	am.root = root

	if watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		am.fsnotify = w
		am.done = make(chan struct{})
		am.stopped = make(chan struct{})
	}
	if err := am.watchRecursive(root, false); err != nil {
		if am.fsnotify != nil {
			am.fsnotify.Close()
			am.fsnotify = nil
		}
		return err
	}
	if am.fsnotify != nil {
		go am.start()
	}
	core.LogInfo("indexed %d shader assets under %s (watch=%t)", len(am.Assets()), dir, watch)
	return nil
}

func (am *AssetManager) Root() string {
	return am.root
}

func (am *AssetManager) Driver() metadata.Driver {
	return am.loader.Driver
}

// Assets returns the indexed files sorted by path.
func (am *AssetManager) Assets() []AssetInfo {
	am.mutex.RLock()
	defer am.mutex.RUnlock()

	out := make([]AssetInfo, 0, len(am.assets))
	for _, a := range am.assets {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b AssetInfo) int { return strings.Compare(a.Path, b.Path) })
	return out
}

// ShaderNames lists the file stems of every indexed manifest.
func (am *AssetManager) ShaderNames() []string {
	var names []string
	for _, a := range am.Assets() {
		if a.Type == AssetTypeShaderManifest {
			names = append(names, strings.TrimSuffix(filepath.Base(a.Path), ManifestExtension))
		}
	}
	return names
}

func (am *AssetManager) manifestPath(name string) (string, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()

	for path, a := range am.assets {
		if a.Type == AssetTypeShaderManifest && strings.TrimSuffix(filepath.Base(path), ManifestExtension) == name {
			return path, true
		}
	}
	return "", false
}

// LoadShader loads the manifest named name (its file stem) and remembers
// which files the shader depends on.
func (am *AssetManager) LoadShader(name string) (metadata.ShaderCreateInfo, error) {
	path, ok := am.manifestPath(name)
	if !ok {
		return metadata.ShaderCreateInfo{}, core.NewConfigurationError("shader", "no manifest named '%s' under %s", name, am.root)
	}
	info, deps, err := am.loader.Load(path)
	if err != nil {
		return metadata.ShaderCreateInfo{}, err
	}

	am.mutex.Lock()
	for file, names := range am.dependents {
		am.dependents[file] = slices.DeleteFunc(names, func(n string) bool { return n == info.Name })
	}
	for _, file := range deps {
		if !slices.Contains(am.dependents[file], info.Name) {
			am.dependents[file] = append(am.dependents[file], info.Name)
		}
	}
	if a, ok := am.assets[path]; ok {
		a.LastLoaded = time.Now()
		am.assets[path] = a
	}
	am.mutex.Unlock()
	return info, nil
}

// Dependents lists the shaders loaded from path.
func (am *AssetManager) Dependents(path string) []string {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return slices.Clone(am.dependents[path])
}

// Shutdown stops watching. It is safe to call more than once.
func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	if am.isClosed || am.fsnotify == nil {
		am.isClosed = true
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	am.mutex.Unlock()

	close(am.done)
	<-am.stopped
	return nil
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleEvent(e)

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %s", err)

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

func (am *AssetManager) handleEvent(e fsnotify.Event) {
	s, err := os.Stat(e.Name)
	if err == nil && s.IsDir() {
		if e.Has(fsnotify.Create) {
			if err := am.watchRecursive(e.Name, false); err != nil {
				core.LogWarn("failed to watch %s: %s", e.Name, err)
			}
		}
		return
	}

	switch {
	case e.Has(fsnotify.Create), e.Has(fsnotify.Write):
		if !am.indexFile(e.Name) {
			return
		}
	case e.Has(fsnotify.Remove), e.Has(fsnotify.Rename):
		// A deleted path cannot be stat'ed, so it may have been a directory.
		am.removeAsset(e.Name)
		_ = am.fsnotify.Remove(e.Name)
		return
	default:
		return
	}
	am.notify(e.Name)
}

// notify fires a change event for every shader that depends on path. A new
// or changed manifest that was never loaded is reported under its stem.
func (am *AssetManager) notify(path string) {
	names := am.Dependents(path)
	if len(names) == 0 && determineAssetType(path) == AssetTypeShaderManifest {
		names = []string{strings.TrimSuffix(filepath.Base(path), ManifestExtension)}
	}
	for _, name := range names {
		core.LogDebug("shader '%s' changed (%s)", name, path)
		if am.events != nil {
			am.events.Fire(core.EVENT_CODE_SHADER_SOURCE_CHANGED, am, core.EventContext{Name: name, Path: path})
		}
	}
}

// watchRecursive indexes every file under path and, when watching, adds
// every directory to the watch list. Files created before a directory's
// watch is in place are still picked up by the walk.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.WalkDir(path, func(walkPath string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if am.fsnotify == nil {
				return nil
			}
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		am.indexFile(walkPath)
		return nil
	})
}

// indexFile records a shader related file and reports whether it is one.
func (am *AssetManager) indexFile(path string) bool {
	assetType := determineAssetType(path)
	if assetType == AssetTypeNone {
		return false
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[path] = AssetInfo{
		Path: path,
		Type: assetType,
	}
	return true
}

// removeAsset forgets path, or every file under it if it was a directory.
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	prefix := path + string(filepath.Separator)
	for p := range am.assets {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(am.assets, p)
		}
	}
}

func determineAssetType(path string) AssetType {
	ext := filepath.Ext(path)
	switch ext {
	case ManifestExtension:
		return AssetTypeShaderManifest
	case ".wgsl":
		return AssetTypeShaderSource
	}
	for _, d := range metadata.Drivers() {
		if e := metadata.ShaderBytecodeExtension(d); e != "" && ext == "."+e {
			return AssetTypeShaderBytecode
		}
	}
	return AssetTypeNone
}

var errClosed = errors.New("asset manager already shut down")

// Watch adds another directory tree to the index and the watch list.
func (am *AssetManager) Watch(dir string) error {
	am.mutex.RLock()
	closed := am.isClosed
	am.mutex.RUnlock()
	if closed {
		return errClosed
	}
	return am.watchRecursive(dir, false)
}

// Unwatch stops watching a directory tree and drops it from the index.
func (am *AssetManager) Unwatch(dir string) error {
	am.mutex.RLock()
	closed := am.isClosed
	am.mutex.RUnlock()
	if closed {
		return errClosed
	}
	if err := am.watchRecursive(dir, true); err != nil {
		return err
	}
	am.removeAsset(dir)
	return nil
}

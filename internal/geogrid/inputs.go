package geogrid

import (
	"fmt"
	"runtime"

	"github.com/pspoerri/geogrid/internal/cog"
	"github.com/pspoerri/geogrid/internal/coord"
	"github.com/pspoerri/geogrid/internal/elevation"
)

// openInputs opens the rasters named by cfg. The returned function closes
// every reader that was opened.
func openInputs(cfg Config, opts Options) (Inputs, func(), error) {
	var readers []*cog.Reader
	closeAll := func() {
		for _, r := range readers {
			r.Close()
		}
	}

	type input struct {
		name, path string
		dst        *Source
		r          *cog.Reader
	}
	var in Inputs
	files := []*input{
		{name: "dem", path: cfg.DEM, dst: &in.DEM},
		{name: "vx", path: cfg.VX, dst: &in.VX},
		{name: "vy", path: cfg.VY, dst: &in.VY},
		{name: "dhdx", path: cfg.DHDX, dst: &in.DHDX},
		{name: "dhdy", path: cfg.DHDY, dst: &in.DHDY},
	}
	for _, f := range files {
		if f.path == "" {
			continue
		}
		r, err := cog.Open(f.path)
		if err != nil {
			closeAll()
			return Inputs{}, nil, &ResourceError{Resource: f.name, Path: f.path, Err: err}
		}
		readers = append(readers, r)
		if epsg := r.EPSG(); epsg != 0 && epsg != cfg.EPSG {
			closeAll()
			return Inputs{}, nil, &ResourceError{Resource: f.name, Path: f.path,
				Err: fmt.Errorf("raster is in EPSG:%d, the grid in EPSG:%d", epsg, cfg.EPSG)}
		}
		f.r = r
	}

	blocks := opts.CacheBlocks
	if blocks <= 0 {
		workers := opts.Sweep.Workers
		if workers <= 0 {
			workers = runtime.GOMAXPROCS(0)
		}
		blocks = cacheBlocks(opts.CacheBytes, workers, readers)
	}
	for _, f := range files {
		if f.r != nil {
			*f.dst = elevation.Raster(f.r, blocks)
		}
	}

	if opts.GeoidDEM {
		proj, err := coord.Lookup(cfg.EPSG)
		if err != nil {
			closeAll()
			return Inputs{}, nil, &ConfigError{Field: "EPSG", Reason: err.Error(), Err: err}
		}
		in.DEM = elevation.WithGeoid(in.DEM, proj)
	}
	return in, closeAll, nil
}

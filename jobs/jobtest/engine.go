// Package jobtest provides an in-process job engine that completes jobs only when told to
package jobtest

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/tiler/jobs"
	"github.com/vkngwrapper/tiler/memory"
	"github.com/vkngwrapper/tiler/memutils"
)

// Engine records every job it creates and starts. Started jobs complete in submission order when
// CompleteGeometry or CompleteRaster is called.
type Engine struct {
	mutex sync.Mutex

	geometryAllocated int
	geometryFreed     int
	rasterAllocated   int
	rasterFreed       int

	failGeometryAllocs int
	failRasterAllocs   int
	failGeometryStarts int

	pendingGeometry []*GeometryJob
	pendingRaster   []*RasterJob

	startedGeometry []*GeometryJob
	startedRaster   []*RasterJob
}

var _ jobs.Engine = &Engine{}

func NewEngine() *Engine {
	return &Engine{}
}

// FailGeometryAllocations makes the next count calls to NewGeometryJob fail
func (e *Engine) FailGeometryAllocations(count int) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.failGeometryAllocs = count
}

// FailRasterAllocations makes the next count calls to NewRasterJob fail
func (e *Engine) FailRasterAllocations(count int) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.failRasterAllocs = count
}

// FailGeometryStarts makes the next count geometry job starts fail
func (e *Engine) FailGeometryStarts(count int) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.failGeometryStarts = count
}

func (e *Engine) NewGeometryJob() (jobs.GeometryJob, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.failGeometryAllocs > 0 {
		e.failGeometryAllocs--
		return nil, errors.Wrap(memutils.ErrOutOfMemory, "geometry job allocation failed")
	}

	e.geometryAllocated++
	return &GeometryJob{engine: e}, nil
}

func (e *Engine) NewRasterJob(cores int) (jobs.RasterJob, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.failRasterAllocs > 0 {
		e.failRasterAllocs--
		return nil, errors.Wrap(memutils.ErrOutOfMemory, "raster job allocation failed")
	}

	e.rasterAllocated++
	return &RasterJob{engine: e, Cores: cores}, nil
}

// CompleteGeometry completes the oldest started geometry job. Draw commands spill their bytes into
// the job's heap first, and a heap that cannot grow turns a successful status into
// jobs.StatusOutOfMemory. It returns false if no geometry job was pending.
func (e *Engine) CompleteGeometry(status jobs.Status) bool {
	e.mutex.Lock()
	if len(e.pendingGeometry) == 0 {
		e.mutex.Unlock()
		return false
	}
	job := e.pendingGeometry[0]
	e.pendingGeometry = e.pendingGeometry[1:]
	e.mutex.Unlock()

	if status == jobs.StatusSuccess && job.heap != nil {
		for _, command := range job.commands {
			if command.Kind != jobs.CommandDraw {
				continue
			}

			if err := job.heap.Allocate(command.HeapBytes); err != nil {
				status = jobs.StatusOutOfMemory
				break
			}
		}
	}

	if job.callback != nil {
		job.callback(status)
	}

	if job.autoFree {
		job.Free()
	}

	return true
}

// CompleteRaster completes the oldest started raster job. It returns false if no raster job was pending.
func (e *Engine) CompleteRaster(status jobs.Status) bool {
	e.mutex.Lock()
	if len(e.pendingRaster) == 0 {
		e.mutex.Unlock()
		return false
	}
	job := e.pendingRaster[0]
	e.pendingRaster = e.pendingRaster[1:]
	e.mutex.Unlock()

	if job.callback != nil {
		job.callback(status)
	}

	job.Free()
	return true
}

// CompleteAll completes every pending job successfully until nothing is left in flight
func (e *Engine) CompleteAll() {
	for e.CompleteGeometry(jobs.StatusSuccess) || e.CompleteRaster(jobs.StatusSuccess) {
	}
}

func (e *Engine) PendingGeometry() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return len(e.pendingGeometry)
}

func (e *Engine) PendingRaster() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return len(e.pendingRaster)
}

// StartedGeometry returns every geometry job started so far, in start order
func (e *Engine) StartedGeometry() []*GeometryJob {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return append([]*GeometryJob(nil), e.startedGeometry...)
}

// StartedRaster returns every raster job started so far, in start order
func (e *Engine) StartedRaster() []*RasterJob {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return append([]*RasterJob(nil), e.startedRaster...)
}

func (e *Engine) GeometryAllocated() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.geometryAllocated
}

func (e *Engine) GeometryFreed() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.geometryFreed
}

func (e *Engine) RasterAllocated() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.rasterAllocated
}

func (e *Engine) RasterFreed() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.rasterFreed
}

type GeometryJob struct {
	engine *Engine

	identity uint32
	commands []jobs.Command
	heap     memory.Heap
	autoFree bool
	callback func(status jobs.Status)
	freed    bool
}

var _ jobs.GeometryJob = &GeometryJob{}

func (j *GeometryJob) Reset() {
	j.commands = j.commands[:0]
	j.callback = nil
	j.identity = 0
}

func (j *GeometryJob) SetIdentity(identity uint32) {
	j.identity = identity
}

func (j *GeometryJob) Identity() uint32 {
	return j.identity
}

func (j *GeometryJob) AddCommands(commands ...jobs.Command) error {
	if j.freed {
		panic(errors.New("attempted to add commands to a freed geometry job"))
	}

	j.commands = append(j.commands, commands...)
	return nil
}

func (j *GeometryJob) Commands() []jobs.Command {
	return j.commands
}

func (j *GeometryJob) SetHeap(heap memory.Heap) {
	j.heap = heap
}

func (j *GeometryJob) Heap() memory.Heap {
	return j.heap
}

func (j *GeometryJob) SetAutoFree(autoFree bool) {
	j.autoFree = autoFree
}

func (j *GeometryJob) SetCallback(callback func(status jobs.Status)) {
	j.callback = callback
}

func (j *GeometryJob) Start() error {
	j.engine.mutex.Lock()
	defer j.engine.mutex.Unlock()

	if j.engine.failGeometryStarts > 0 {
		j.engine.failGeometryStarts--
		return errors.New("geometry job start failed")
	}

	j.engine.pendingGeometry = append(j.engine.pendingGeometry, j)
	j.engine.startedGeometry = append(j.engine.startedGeometry, j)
	return nil
}

func (j *GeometryJob) Free() {
	j.engine.mutex.Lock()
	defer j.engine.mutex.Unlock()

	if j.freed {
		panic(errors.New("geometry job freed twice"))
	}

	j.freed = true
	j.engine.geometryFreed++
}

func (j *GeometryJob) Freed() bool {
	j.engine.mutex.Lock()
	defer j.engine.mutex.Unlock()

	return j.freed
}

type RasterJob struct {
	engine *Engine

	Cores    int
	setup    jobs.Setup
	identity uint32
	callback func(status jobs.Status)
	freed    bool
}

var _ jobs.RasterJob = &RasterJob{}

func (j *RasterJob) SetSetup(setup jobs.Setup) {
	j.setup = setup
}

func (j *RasterJob) Setup() jobs.Setup {
	return j.setup
}

func (j *RasterJob) SetIdentity(identity uint32) {
	j.identity = identity
}

func (j *RasterJob) Identity() uint32 {
	return j.identity
}

func (j *RasterJob) SetCallback(callback func(status jobs.Status)) {
	j.callback = callback
}

func (j *RasterJob) Start() {
	j.engine.mutex.Lock()
	defer j.engine.mutex.Unlock()

	j.engine.pendingRaster = append(j.engine.pendingRaster, j)
	j.engine.startedRaster = append(j.engine.startedRaster, j)
}

func (j *RasterJob) Free() {
	j.engine.mutex.Lock()
	defer j.engine.mutex.Unlock()

	if j.freed {
		panic(errors.New("raster job freed twice"))
	}

	j.freed = true
	j.engine.rasterFreed++
}

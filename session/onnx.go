// ONNX Runtime binding: dynamically load libonnxruntime via purego rather
// than cgo, and hand-translate the small slice of the C API the model
// needs. Runs a real batch in one call rather than one row at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/rs/zerolog/log"

	"github.com/filetype-ai/magika/magikaerr"
)

// apiVersion needs to match ORT_API_VERSION for the runtime being loaded.
// This is always the minor version; it's fine for it to lag the version of
// the library loaded at runtime.
const apiVersion = 15

var getRuntimeHandle = sync.OnceValues(func() (uintptr, error) {
	handle, err := purego.Dlopen("libonnxruntime.so.1", purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return 0, errors.Join(errors.ErrUnsupported, err)
	}
	return handle, nil
})

var getAPIBase = sync.OnceValues(func() (*apiBase, error) {
	handle, err := getRuntimeHandle()
	if err != nil {
		return nil, err
	}
	var fn func() *ortAPIBase
	cfn, err := purego.Dlsym(handle, "OrtGetApiBase")
	if err != nil {
		return nil, errors.Join(errors.ErrUnsupported, err)
	}
	purego.RegisterFunc(&fn, cfn)
	return newAPIBase(fn()), nil
})

var getAPI = sync.OnceValues(func() (*api, error) {
	base, err := getAPIBase()
	if err != nil {
		return nil, errors.Join(errors.ErrUnsupported, err)
	}
	return base.GetAPI()
})

type ortAPIBase struct {
	GetApi           uintptr
	GetVersionString uintptr
}

type apiBase struct {
	getAPI           func(uint32) *ortAPI
	getVersionString func() string
}

func newAPIBase(ort *ortAPIBase) *apiBase {
	var r apiBase
	purego.RegisterFunc(&r.getAPI, ort.GetApi)
	purego.RegisterFunc(&r.getVersionString, ort.GetVersionString)
	return &r
}

func (a *apiBase) GetAPI() (*api, error) {
	ort := a.getAPI(apiVersion)
	if ort == nil {
		return nil, errors.New("unable to load ONNX Runtime")
	}
	return newAPI(ort), nil
}

// ortAPI holds the raw function-pointer table; see the generated
// ort_types.go in the upstream project for the full struct this is a
// hand-picked slice of.
type ortAPI struct {
	GetErrorMessage uintptr
	GetErrorCode    uintptr

	CreateEnv              uintptr
	DisableTelemetryEvents uintptr

	CreateSessionOptions uintptr
	EnableCpuMemArena    uintptr

	CreateSessionFromArray uintptr

	CreateCpuMemoryInfo uintptr

	CreateTensorWithDataAsOrtValue uintptr
	GetTensorMutableData           uintptr

	Run uintptr

	ReleaseEnv            uintptr
	ReleaseMemoryInfo     uintptr
	ReleaseSession        uintptr
	ReleaseSessionOptions uintptr
	ReleaseStatus         uintptr
	ReleaseValue          uintptr
}

type api struct {
	getErrorMessage func(ortStatus) string
	getErrorCode    func(ortStatus) int

	createEnv              func(int, string, *ortEnv) ortStatus
	disableTelemetryEvents func(ortEnv) ortStatus

	createSessionOptions func(*ortSessionOptions) ortStatus
	enableCPUMemArena    func(ortSessionOptions) ortStatus

	createSessionFromArray func(ortEnv, unsafe.Pointer, int, ortSessionOptions, *ortSession) ortStatus

	createCPUMemoryInfo func(int, int, *ortMemoryInfo) ortStatus

	createTensorWithDataAsOrtValue func(ortMemoryInfo, unsafe.Pointer, int, *int64, int, int, *ortValue) ortStatus
	getTensorMutableData           func(ortValue, *unsafe.Pointer) ortStatus

	run func(ortSession, unsafe.Pointer, *string, *ortValue, int, *string, int, *ortValue) ortStatus

	releaseEnv            func(ortEnv)
	releaseMemoryInfo     func(ortMemoryInfo)
	releaseSession        func(ortSession)
	releaseSessionOptions func(ortSessionOptions)
	releaseStatus         func(ortStatus)
	releaseValue          func(ortValue)
}

func newAPI(ort *ortAPI) *api {
	var r api
	purego.RegisterFunc(&r.getErrorMessage, ort.GetErrorMessage)
	purego.RegisterFunc(&r.getErrorCode, ort.GetErrorCode)
	purego.RegisterFunc(&r.createEnv, ort.CreateEnv)
	purego.RegisterFunc(&r.disableTelemetryEvents, ort.DisableTelemetryEvents)
	purego.RegisterFunc(&r.createSessionOptions, ort.CreateSessionOptions)
	purego.RegisterFunc(&r.enableCPUMemArena, ort.EnableCpuMemArena)
	purego.RegisterFunc(&r.createSessionFromArray, ort.CreateSessionFromArray)
	purego.RegisterFunc(&r.createCPUMemoryInfo, ort.CreateCpuMemoryInfo)
	purego.RegisterFunc(&r.createTensorWithDataAsOrtValue, ort.CreateTensorWithDataAsOrtValue)
	purego.RegisterFunc(&r.getTensorMutableData, ort.GetTensorMutableData)
	purego.RegisterFunc(&r.run, ort.Run)
	purego.RegisterFunc(&r.releaseEnv, ort.ReleaseEnv)
	purego.RegisterFunc(&r.releaseMemoryInfo, ort.ReleaseMemoryInfo)
	purego.RegisterFunc(&r.releaseSessionOptions, ort.ReleaseSessionOptions)
	purego.RegisterFunc(&r.releaseSession, ort.ReleaseSession)
	purego.RegisterFunc(&r.releaseStatus, ort.ReleaseStatus)
	purego.RegisterFunc(&r.releaseValue, ort.ReleaseValue)
	return &r
}

const onnxLogName = "magika\x00"

const (
	ortInvalidAllocator = iota - 1
	ortDeviceAllocator
)

const (
	ortMemTypeCPUOutput = -1
	ortMemTypeDefault   = 0
)

const ortArenaAllocator = 1

const tensorElementInt32 = 6

func (a *api) checkStatus(s ortStatus) error {
	if s != nil {
		err := errors.New(a.getErrorMessage(s))
		a.releaseStatus(s)
		return err
	}
	return nil
}

// CreateSession loads model bytes into a new ONNX Runtime session.
func (a *api) CreateSession(model []byte) (*ortSessionHandle, error) {
	const logLevelWarning = 2
	var env ortEnv
	if err := a.checkStatus(a.createEnv(logLevelWarning, onnxLogName, &env)); err != nil {
		return nil, err
	}
	if err := a.checkStatus(a.disableTelemetryEvents(env)); err != nil {
		return nil, err
	}
	var options ortSessionOptions
	if err := a.checkStatus(a.createSessionOptions(&options)); err != nil {
		return nil, err
	}
	if err := a.checkStatus(a.enableCPUMemArena(options)); err != nil {
		return nil, err
	}
	var mem ortMemoryInfo
	if err := a.checkStatus(a.createCPUMemoryInfo(ortArenaAllocator, ortMemTypeDefault, &mem)); err != nil {
		return nil, err
	}
	var sess ortSession
	if err := a.checkStatus(a.createSessionFromArray(env, unsafe.Pointer(unsafe.SliceData(model)), len(model), options, &sess)); err != nil {
		return nil, err
	}
	return newSessionHandle(a, env, options, mem, sess), nil
}

type ortSessionHandle struct {
	api     *api
	env     ortEnv
	options ortSessionOptions
	mem     ortMemoryInfo
	session ortSession
}

func newSessionHandle(api *api, env ortEnv, options ortSessionOptions, mem ortMemoryInfo, p ortSession) *ortSessionHandle {
	r := &ortSessionHandle{api: api, env: env, options: options, mem: mem, session: p}
	runtime.AddCleanup(r, api.releaseEnv, env)
	runtime.AddCleanup(r, api.releaseSessionOptions, options)
	runtime.AddCleanup(r, api.releaseMemoryInfo, mem)
	runtime.AddCleanup(r, api.releaseSession, p)
	return r
}

var (
	inputNames  = []string{"bytes\x00"}
	outputNames = []string{"target_label\x00"}
)

// run executes the model over a flattened [batch*featuresLen] tensor,
// returning a flattened [batch*numLabels] score slice.
func (s *ortSessionHandle) run(flat []int32, batch, featuresLen, numLabels int) ([]float32, error) {
	shape := []int64{int64(batch), int64(featuresLen)}

	var in, out ortValue
	status := s.api.createTensorWithDataAsOrtValue(s.mem,
		unsafe.Pointer(unsafe.SliceData(flat)), len(flat)*int(unsafe.Sizeof(int32(0))),
		unsafe.SliceData(shape), 2,
		tensorElementInt32, &in)
	if err := s.api.checkStatus(status); err != nil {
		return nil, err
	}
	defer s.api.releaseValue(in)

	status = s.api.run(s.session, nil,
		unsafe.SliceData(inputNames), &in, 1,
		unsafe.SliceData(outputNames), 1,
		&out)
	if err := s.api.checkStatus(status); err != nil {
		return nil, err
	}
	defer s.api.releaseValue(out)

	var data unsafe.Pointer
	status = s.api.getTensorMutableData(out, &data)
	if err := s.api.checkStatus(status); err != nil {
		return nil, err
	}
	ret := make([]float32, batch*numLabels)
	copy(ret, unsafe.Slice((*float32)(data), batch*numLabels))
	return ret, nil
}

type (
	ortEnv            unsafe.Pointer
	ortSessionOptions unsafe.Pointer
	ortMemoryInfo     unsafe.Pointer
	ortValue          unsafe.Pointer
	ortSession        unsafe.Pointer
	ortStatus         unsafe.Pointer
)

// onnxRuntime implements [Runtime] on top of the ONNX Runtime C API.
type onnxRuntime struct {
	h          *ortSessionHandle
	numLabels  int
	modelBytes []byte // kept alive: the C side does not copy the model data
}

// NewONNXRuntime loads model (an ONNX-serialized graph) and returns a
// [Runtime] backed by the system's ONNX Runtime shared library.
//
// Reports an error wrapping [errors.ErrUnsupported] if the runtime cannot be
// dynamically loaded.
func NewONNXRuntime(model []byte, numLabels int) (Runtime, error) {
	a, err := getAPI()
	if err != nil {
		return nil, &magikaerr.Error{Op: "session.NewONNXRuntime", Kind: magikaerr.ErrRuntime, Inner: err}
	}
	h, err := a.CreateSession(model)
	if err != nil {
		return nil, &magikaerr.Error{Op: "session.NewONNXRuntime", Kind: magikaerr.ErrRuntime, Inner: err}
	}
	log.Info().Int("labels", numLabels).Msg("onnx runtime session created")
	return &onnxRuntime{h: h, numLabels: numLabels, modelBytes: model}, nil
}

// Run implements [Runtime].
func (r *onnxRuntime) Run(ctx context.Context, rows [][]int32) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	featuresLen := len(rows[0])
	flat := make([]int32, 0, len(rows)*featuresLen)
	for _, row := range rows {
		if len(row) != featuresLen {
			return nil, &magikaerr.Error{Op: "session.Run", Kind: magikaerr.ErrRuntime, Message: fmt.Sprintf("ragged batch: row length %d, want %d", len(row), featuresLen)}
		}
		flat = append(flat, row...)
	}

	out, err := r.h.run(flat, len(rows), featuresLen, r.numLabels)
	if err != nil {
		return nil, &magikaerr.Error{Op: "session.Run", Kind: magikaerr.ErrRuntime, Inner: err}
	}
	if len(out) != len(rows)*r.numLabels {
		return nil, &magikaerr.Error{Op: "session.Run", Kind: magikaerr.ErrRuntime, Message: fmt.Sprintf("unexpected output length %d, want %d", len(out), len(rows)*r.numLabels)}
	}

	scores := make([][]float32, len(rows))
	for i := range rows {
		scores[i] = out[i*r.numLabels : (i+1)*r.numLabels]
	}
	return scores, nil
}

// Close implements [Runtime]. Resources are actually released by
// runtime.AddCleanup finalizers registered in newSessionHandle; Close is a
// no-op placed here so callers have a symmetric lifecycle to hold onto.
func (r *onnxRuntime) Close() error { return nil }

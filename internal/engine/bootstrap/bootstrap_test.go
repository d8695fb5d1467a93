package bootstrap_test

import (
	"context"
	"errors"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports/mocks"
	"go.trai.ch/ship/internal/engine/bootstrap"
	"go.uber.org/mock/gomock"
)

// fakeIndex behaves like pip against a registry that always offers newer versions: an
// exact pin installs that version, anything else installs latest.
type fakeIndex struct {
	mu       sync.Mutex
	packages map[string]string
	latest   map[string]string
	installs []string
}

func (f *fakeIndex) Installed(context.Context, *domain.ToolchainBinding) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.packages), nil
}

func (f *fakeIndex) Install(_ context.Context, _ *domain.ToolchainBinding, spec domain.DependencySpec, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installs = append(f.installs, spec.Requirement())
	if spec.Exact {
		f.packages[spec.Key()] = spec.Version
		return nil
	}
	f.packages[spec.Key()] = f.latest[spec.Key()]
	return nil
}

func newLogger(t *testing.T) *mocks.MockLogger {
	t.Helper()
	logger := mocks.NewMockLogger(gomock.NewController(t))
	logger.EXPECT().Info(gomock.Any()).AnyTimes()
	logger.EXPECT().Warn(gomock.Any()).AnyTimes()
	return logger
}

func binding() *domain.ToolchainBinding {
	return &domain.ToolchainBinding{Platform: "linux", Interpreter: "/usr/bin/python3.6"}
}

func requirements(t *testing.T, reqs ...string) []domain.DependencySpec {
	t.Helper()
	specs := make([]domain.DependencySpec, 0, len(reqs))
	for _, r := range reqs {
		s, err := domain.ParseDependency(r)
		require.NoError(t, err)
		specs = append(specs, s)
	}
	return specs
}

func TestBootstrap_InstallsAndUpgradesPackageManagerFirst(t *testing.T) {
	index := &fakeIndex{
		packages: map[string]string{"pip": "9.0.1", "setuptools": "39.0.1"},
		latest:   map[string]string{"pip": "20.0.2", "setuptools": "45.0.0", "wheel": "0.34.2"},
	}
	spec := domain.BootstrapSpec{
		PackageManagerFloor: "19.0",
		Requirements:        requirements(t, "setuptools==44.0.0", "pyinstaller==3.6", "wheel>=0.33"),
	}

	env, err := bootstrap.New(index, newLogger(t)).Bootstrap(context.Background(), binding(), spec)
	require.NoError(t, err)

	assert.Equal(t, []string{"pip>=19.0", "setuptools==44.0.0", "pyinstaller==3.6", "wheel>=0.33"}, index.installs)
	assert.Equal(t, "44.0.0", env.Packages["setuptools"])
	assert.Equal(t, "3.6", env.Packages["pyinstaller"])
	assert.Equal(t, "0.34.2", env.Packages["wheel"])
	assert.Equal(t, "20.0.2", env.Packages["pip"])
}

func TestBootstrap_Idempotent(t *testing.T) {
	index := &fakeIndex{
		packages: map[string]string{"pip": "20.0.2"},
		latest:   map[string]string{"setuptools": "45.0.0"},
	}
	spec := domain.BootstrapSpec{
		PackageManagerFloor: "19.0",
		Requirements:        requirements(t, "setuptools==44.0.0"),
	}
	b := bootstrap.New(index, newLogger(t))

	first, err := b.Bootstrap(context.Background(), binding(), spec)
	require.NoError(t, err)
	second, err := b.Bootstrap(context.Background(), binding(), spec)
	require.NoError(t, err)

	assert.Equal(t, first.Packages, second.Packages)
	assert.Equal(t, "44.0.0", second.Packages["setuptools"], "exact pin is not upgraded on re-run")
	assert.Equal(t, []string{"setuptools==44.0.0"}, index.installs, "second run installs nothing")
}

func TestBootstrap_ConflictDetectedBeforeAnyIO(t *testing.T) {
	ctrl := gomock.NewController(t)
	pm := mocks.NewMockPackageManager(ctrl)

	spec := domain.BootstrapSpec{Requirements: requirements(t, "setuptools==44.0.0", "setuptools==45.0.0")}
	_, err := bootstrap.New(pm, newLogger(t)).Bootstrap(context.Background(), binding(), spec)

	require.Error(t, err)
	assert.Equal(t, domain.KindVersionConflict, domain.KindOf(err))
}

func TestBootstrap_RetriesUnavailableDependency(t *testing.T) {
	ctrl := gomock.NewController(t)
	pm := mocks.NewMockPackageManager(ctrl)
	b := binding()
	req := requirements(t, "pyinstaller==3.6")

	gomock.InOrder(
		pm.EXPECT().Installed(gomock.Any(), b).Return(map[string]string{}, nil),
		pm.EXPECT().Install(gomock.Any(), b, req[0], 5*time.Minute).
			Return(domain.Fail(domain.KindDependencyUnavailable, errors.New("connection reset"))),
		pm.EXPECT().Install(gomock.Any(), b, req[0], 5*time.Minute).
			Return(errors.New("read timeout")),
		pm.EXPECT().Install(gomock.Any(), b, req[0], 5*time.Minute).Return(nil),
		pm.EXPECT().Installed(gomock.Any(), b).Return(map[string]string{"pyinstaller": "3.6"}, nil),
	)

	spec := domain.BootstrapSpec{
		Requirements:   req,
		InstallTimeout: 5 * time.Minute,
		MaxAttempts:    3,
		Backoff:        time.Millisecond,
	}
	env, err := bootstrap.New(pm, newLogger(t)).Bootstrap(context.Background(), b, spec)
	require.NoError(t, err)
	assert.Equal(t, "3.6", env.Packages["pyinstaller"])
}

func TestBootstrap_GivesUpAfterMaxAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	pm := mocks.NewMockPackageManager(ctrl)

	pm.EXPECT().Installed(gomock.Any(), gomock.Any()).Return(map[string]string{}, nil)
	pm.EXPECT().Install(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("registry down")).Times(2)

	spec := domain.BootstrapSpec{
		Requirements: requirements(t, "wheel>=0.33"),
		MaxAttempts:  2,
		Backoff:      time.Millisecond,
	}
	_, err := bootstrap.New(pm, newLogger(t)).Bootstrap(context.Background(), binding(), spec)

	require.Error(t, err)
	assert.Equal(t, domain.KindDependencyUnavailable, domain.KindOf(err))
	assert.Equal(t, 11, domain.ExitCode(err))
}

func TestBootstrap_VersionConflictIsNotRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	pm := mocks.NewMockPackageManager(ctrl)

	pm.EXPECT().Installed(gomock.Any(), gomock.Any()).Return(map[string]string{}, nil)
	pm.EXPECT().Install(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.Fail(domain.KindVersionConflict, errors.New("ResolutionImpossible"))).Times(1)

	spec := domain.BootstrapSpec{
		Requirements: requirements(t, "pyinstaller==3.6"),
		MaxAttempts:  4,
		Backoff:      time.Millisecond,
	}
	_, err := bootstrap.New(pm, newLogger(t)).Bootstrap(context.Background(), binding(), spec)

	require.Error(t, err)
	assert.Equal(t, domain.KindVersionConflict, domain.KindOf(err))
}

func TestBootstrap_InstalledVersionDrift(t *testing.T) {
	ctrl := gomock.NewController(t)
	pm := mocks.NewMockPackageManager(ctrl)

	gomock.InOrder(
		pm.EXPECT().Installed(gomock.Any(), gomock.Any()).Return(map[string]string{}, nil),
		pm.EXPECT().Install(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
		pm.EXPECT().Installed(gomock.Any(), gomock.Any()).Return(map[string]string{"setuptools": "45.0.0"}, nil),
	)

	spec := domain.BootstrapSpec{Requirements: requirements(t, "setuptools==44.0.0")}
	_, err := bootstrap.New(pm, newLogger(t)).Bootstrap(context.Background(), binding(), spec)

	require.Error(t, err)
	assert.Equal(t, domain.KindVersionConflict, domain.KindOf(err))
}

func TestObserve(t *testing.T) {
	index := &fakeIndex{packages: map[string]string{"setuptools": "44.0.0"}}
	b := bootstrap.New(index, newLogger(t))

	env, err := b.Observe(context.Background(), binding(), domain.BootstrapSpec{
		Requirements: requirements(t, "setuptools==44.0.0"),
	})
	require.NoError(t, err)
	assert.Equal(t, "44.0.0", env.Packages["setuptools"])

	_, err = b.Observe(context.Background(), binding(), domain.BootstrapSpec{
		Requirements: requirements(t, "pyinstaller==3.6"),
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindDependencyUnavailable, domain.KindOf(err))
	assert.Contains(t, err.Error(), "not bootstrapped")
	assert.Empty(t, index.installs)
}

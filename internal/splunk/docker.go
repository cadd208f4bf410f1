package splunk

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"course-ingest/internal/config"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// 컨테이너가 publish 하는 포트: Web UI, HEC, 관리 API
var publishedPorts = []string{"8000/tcp", "8088/tcp", "8089/tcp"}

// ContainerAPI 는 Docker Engine API 중 여기서 쓰는 부분 집합 (*client.Client 가 만족).
type ContainerAPI interface {
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.ContainerCreateCreatedBody, error)
	ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error
	ContainerStop(ctx context.Context, containerID string, timeout *time.Duration) error
	ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error
	CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options types.CopyToContainerOptions) error
	ImagePull(ctx context.Context, ref string, options types.ImagePullOptions) (io.ReadCloser, error)
}

// NewDockerAPI 는 DOCKER_HOST 등 환경변수 기반 Docker client 를 만든다.
func NewDockerAPI() (*client.Client, error) {
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}

// Docker 는 적재 대상 컨테이너 하나의 수명주기를 관리한다.
//   - Ensure: 없으면 생성, 멈춰 있으면 시작, 실행 중이면 그대로
//   - Remove: stop + 강제 삭제 (retry 전 상태 초기화)
//   - CopyFile: 컨테이너 파일시스템으로 파일 복사 (lookup 업로드)
type Docker struct {
	api      ContainerAPI
	name     string
	image    string
	password string
	settle   time.Duration
}

func NewDocker(cfg config.Config, api ContainerAPI) *Docker {
	return &Docker{
		api:      api,
		name:     cfg.Container,
		image:    cfg.Image,
		password: cfg.SplunkPassword,
		settle:   cfg.CleanupSettle,
	}
}

// Ensure 는 컨테이너가 실행 중인 상태를 만든다.
func (d *Docker) Ensure(ctx context.Context) error {
	info, err := d.api.ContainerInspect(ctx, d.name)
	switch {
	case err == nil && info.ContainerJSONBase != nil && info.State != nil && info.State.Running:
		log.Info().Str("container", d.name).Msg("container already running")
		return nil
	case err == nil:
		// 존재하지만 멈춰 있음
	case errdefs.IsNotFound(err):
		if err := d.create(ctx); err != nil {
			return err
		}
	default:
		return errors.Wrapf(err, "inspect container %s", d.name)
	}

	if err := d.api.ContainerStart(ctx, d.name, types.ContainerStartOptions{}); err != nil {
		return errors.Wrapf(err, "start container %s", d.name)
	}
	log.Info().Str("container", d.name).Str("image", d.image).Msg("container started")
	return nil
}

func (d *Docker) create(ctx context.Context) error {
	exposed := make(nat.PortSet)
	bindings := make(nat.PortMap)
	for _, p := range publishedPorts {
		port := nat.Port(p)
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: port.Port()}}
	}

	cfg := &container.Config{
		Image:        d.image,
		ExposedPorts: exposed,
		Env: []string{
			"SPLUNK_START_ARGS=--accept-license",
			"SPLUNK_GENERAL_TERMS=--accept-sgt-current-at-splunk-com",
			"SPLUNK_PASSWORD=" + d.password,
		},
	}
	host := &container.HostConfig{PortBindings: bindings}

	_, err := d.api.ContainerCreate(ctx, cfg, host, &network.NetworkingConfig{}, nil, d.name)
	if errdefs.IsNotFound(err) {
		// 이미지가 로컬에 없음 → pull 후 한 번 더
		if perr := d.pull(ctx); perr != nil {
			return perr
		}
		_, err = d.api.ContainerCreate(ctx, cfg, host, &network.NetworkingConfig{}, nil, d.name)
	}
	if err != nil {
		return errors.Wrapf(err, "create container %s", d.name)
	}
	return nil
}

func (d *Docker) pull(ctx context.Context) error {
	log.Info().Str("image", d.image).Msg("pulling image")
	rc, err := d.api.ImagePull(ctx, d.image, types.ImagePullOptions{})
	if err != nil {
		return errors.Wrapf(err, "pull image %s", d.image)
	}
	defer rc.Close()
	// pull 진행 상황 스트림을 끝까지 읽어야 pull 이 완료된다
	_, err = io.Copy(io.Discard, rc)
	return errors.Wrapf(err, "pull image %s", d.image)
}

// Remove 는 컨테이너를 멈추고 삭제한다. 이미 없으면 성공으로 본다.
func (d *Docker) Remove(ctx context.Context) error {
	timeout := 10 * time.Second
	if err := d.api.ContainerStop(ctx, d.name, &timeout); err != nil && !errdefs.IsNotFound(err) {
		log.Warn().Err(err).Str("container", d.name).Msg("container stop failed")
	}

	err := d.api.ContainerRemove(ctx, d.name, types.ContainerRemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return errors.Wrapf(err, "remove container %s", d.name)
	}

	if d.settle > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.settle):
		}
	}
	log.Info().Str("container", d.name).Msg("container removed")
	return nil
}

// CopyFile 은 로컬 파일 src 를 컨테이너의 destDir 아래에 같은 이름으로 복사한다.
// Engine API 는 tar 스트림만 받으므로 파일 하나짜리 tar 를 만든다.
func (d *Docker) CopyFile(ctx context.Context, src, destDir string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrap(err, "read lookup file")
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name:    filepath.Base(src),
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return errors.Wrap(err, "tar header")
	}
	if _, err := tw.Write(data); err != nil {
		return errors.Wrap(err, "tar body")
	}
	if err := tw.Close(); err != nil {
		return errors.Wrap(err, "tar close")
	}

	err = d.api.CopyToContainer(ctx, d.name, destDir, &buf, types.CopyToContainerOptions{})
	return errors.Wrapf(err, "copy %s to %s:%s", filepath.Base(src), d.name, destDir)
}

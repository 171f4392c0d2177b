package dispatch

import (
	"context"
	"fmt"
	"strconv"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"

	"github.com/cuemby/streamsched/pkg/types"
)

const (
	// DefaultNamespace is the containerd namespace streamsched launches
	// program runs under.
	DefaultNamespace = "streamsched"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"
)

// ContainerdDispatcher implements ProgramDispatcher by launching each
// program run as a one-shot containerd task. It does not wait for the
// task to exit: Run returns once the task has been started, matching
// spec §4.3's "a successful dispatch returns; execution outcome is
// owned by the dispatcher" contract.
type ContainerdDispatcher struct {
	client    *containerd.Client
	namespace string
	// imageRef resolves a program's type and name to the OCI image
	// that implements it. Pluggable because streamsched's core has no
	// opinion on how programs are packaged.
	imageRef func(program types.ProgramRef) string
}

// NewContainerdDispatcher connects to containerd at socketPath (or
// DefaultSocketPath) and returns a dispatcher that resolves program
// images with imageRef.
func NewContainerdDispatcher(socketPath string, imageRef func(types.ProgramRef) string) (*ContainerdDispatcher, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to containerd: %w", err)
	}

	return &ContainerdDispatcher{
		client:    client,
		namespace: DefaultNamespace,
		imageRef:  imageRef,
	}, nil
}

// Close closes the underlying containerd client connection.
func (d *ContainerdDispatcher) Close() error {
	if d.client == nil {
		return nil
	}
	return d.client.Close()
}

// Run pulls the program's image if needed, creates a fresh container and
// task keyed by the schedule's firing, and starts it without waiting for
// exit. If a task from a still-running prior firing occupies the same
// container id, Run reports types.ErrDispatchRefire so the caller
// retries in a tight loop rather than skipping the firing, per §4.3.
func (d *ContainerdDispatcher) Run(ctx context.Context, program types.ProgramRef, args types.DispatchArgs) error {
	ctx = namespaces.WithNamespace(ctx, d.namespace)

	imageRef := d.imageRef(program)
	image, err := d.client.GetImage(ctx, imageRef)
	if err != nil {
		image, err = d.client.Pull(ctx, imageRef, containerd.WithPullUnpack)
		if err != nil {
			return fmt.Errorf("%w: pull image %s: %v", types.ErrDispatch, imageRef, err)
		}
	}

	containerID := runContainerID(program, args)

	container, err := d.client.NewContainer(
		ctx,
		containerID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(containerID+"-snapshot", image),
		containerd.WithNewSpec(
			oci.WithImageConfig(image),
			oci.WithEnv(dispatchEnv(args)),
		),
	)
	if err != nil {
		if errdefs.IsAlreadyExists(err) {
			return fmt.Errorf("%w: container %s already running: %v", types.ErrDispatchRefire, containerID, err)
		}
		return fmt.Errorf("%w: create container %s: %v", types.ErrDispatch, containerID, err)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("%w: create task for %s: %v", types.ErrDispatch, containerID, err)
	}

	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("%w: start task for %s: %v", types.ErrDispatch, containerID, err)
	}

	return nil
}

// runContainerID derives a stable, unique container id for one firing so
// that a retried refire targets the same container rather than leaking
// one per retry attempt.
func runContainerID(program types.ProgramRef, args types.DispatchArgs) string {
	return program.Namespace + "-" + program.Application + "-" + program.ProgramName +
		"-" + args.ScheduleName + "-" + strconv.FormatInt(args.LogicalStartTime, 10)
}

// dispatchEnv renders DispatchArgs as the environment variables the
// program entrypoint reads, per §4.3.
func dispatchEnv(args types.DispatchArgs) []string {
	return []string{
		"SCHEDULE_NAME=" + args.ScheduleName,
		"LOGICAL_START_TIME=" + strconv.FormatInt(args.LogicalStartTime, 10),
		"RUN_DATA_SIZE=" + strconv.FormatInt(args.RunDataSize, 10),
		"PAST_RUN_LOGICAL_START_TIME=" + strconv.FormatInt(args.PastRunLogicalStartTime, 10),
		"PAST_RUN_DATA_SIZE=" + strconv.FormatInt(args.PastRunDataSize, 10),
	}
}

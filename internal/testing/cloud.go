package testing

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/wangkuntian/pipeman/internal/platform/openstack"
)

// FakeCloud is an in-memory control plane. Every created resource reaches
// the status it is waited for on the first poll. Calls are recorded as
// "operation name-or-id" strings in call order.
type FakeCloud struct {
	mu sync.Mutex

	externalNetwork string
	calls           []string
	errors          map[string]error

	nextID    int
	volumes   map[string]*openstack.Volume
	servers   map[string]*openstack.Server
	snapshots map[string]*openstack.Snapshot
	ports     map[string]*openstack.Port
}

// NewFakeCloud creates a fake whose servers get one address on externalNetwork.
func NewFakeCloud(externalNetwork string) *FakeCloud {
	return &FakeCloud{
		externalNetwork: externalNetwork,
		errors:          make(map[string]error),
		volumes:         make(map[string]*openstack.Volume),
		servers:         make(map[string]*openstack.Server),
		snapshots:       make(map[string]*openstack.Snapshot),
		ports:           make(map[string]*openstack.Port),
	}
}

// FailOn makes every call of operation return err.
func (f *FakeCloud) FailOn(operation string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[operation] = err
}

// AddPort registers a port, e.g. the keepalived VIP port.
func (f *FakeCloud) AddPort(id string, ips ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &openstack.Port{ID: id, Name: id, Status: "DOWN"}
	for _, ip := range ips {
		p.FixedIPs = append(p.FixedIPs, openstack.FixedIP{IPAddress: ip})
	}
	f.ports[id] = p
}

// Calls returns the recorded calls in order.
func (f *FakeCloud) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallsOf returns the recorded arguments of one operation.
func (f *FakeCloud) CallsOf(operation string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		op, arg, _ := strings.Cut(c, " ")
		if op == operation {
			out = append(out, arg)
		}
	}
	return out
}

// Servers returns all servers sorted by name.
func (f *FakeCloud) Servers() []openstack.Server {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]openstack.Server, 0, len(f.servers))
	for _, s := range f.servers {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Port returns a copy of the port.
func (f *FakeCloud) Port(id string) (openstack.Port, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.ports[id]
	if !ok {
		return openstack.Port{}, false
	}
	return *p, true
}

// Volume returns a copy of the volume.
func (f *FakeCloud) Volume(id string) (openstack.Volume, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[id]
	if !ok {
		return openstack.Volume{}, false
	}
	return *v, true
}

func (f *FakeCloud) record(operation, arg string) error {
	f.calls = append(f.calls, operation+" "+arg)
	return f.errors[operation]
}

func (f *FakeCloud) id(kind string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", kind, f.nextID)
}

func notFound(kind, id string) error {
	return &openstack.StatusError{Method: http.MethodGet, URL: kind + "/" + id, Expected: http.StatusOK, Actual: http.StatusNotFound}
}

// WaitImage implements provisioning.CloudAPI. Any id is treated as an uploaded image.
func (f *FakeCloud) WaitImage(_ context.Context, id, status string) (*openstack.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("wait_image", id); err != nil {
		return nil, err
	}
	return &openstack.Image{ID: id, Status: status}, nil
}

// CreateVolume implements provisioning.CloudAPI.
func (f *FakeCloud) CreateVolume(_ context.Context, name string, sizeGB int, zone string) (*openstack.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create_volume", name); err != nil {
		return nil, err
	}
	v := &openstack.Volume{ID: f.id("volume"), Name: name, Size: sizeGB, AvailabilityZone: zone, Status: "creating"}
	f.volumes[v.ID] = v
	cp := *v
	return &cp, nil
}

// WaitVolume implements provisioning.CloudAPI.
func (f *FakeCloud) WaitVolume(_ context.Context, id, status string) (*openstack.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("wait_volume", id+"="+status); err != nil {
		return nil, err
	}
	v, ok := f.volumes[id]
	if !ok {
		return nil, notFound("volumes", id)
	}
	v.Status = status
	cp := *v
	return &cp, nil
}

// AttachVolume implements provisioning.CloudAPI.
func (f *FakeCloud) AttachVolume(_ context.Context, serverID, volumeID string, deleteOnTermination bool) (*openstack.VolumeAttachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("attach_volume", serverID+"/"+volumeID); err != nil {
		return nil, err
	}
	s, ok := f.servers[serverID]
	if !ok {
		return nil, notFound("servers", serverID)
	}
	if _, ok := f.volumes[volumeID]; !ok {
		return nil, notFound("volumes", volumeID)
	}
	s.VolumesAttached = append(s.VolumesAttached, openstack.AttachedVolume{ID: volumeID})
	return &openstack.VolumeAttachment{
		ID:                  volumeID,
		ServerID:            serverID,
		VolumeID:            volumeID,
		Device:              "/dev/vda",
		DeleteOnTermination: deleteOnTermination,
	}, nil
}

// DetachVolume implements provisioning.CloudAPI.
func (f *FakeCloud) DetachVolume(_ context.Context, serverID, volumeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("detach_volume", serverID+"/"+volumeID); err != nil {
		return err
	}
	s, ok := f.servers[serverID]
	if !ok {
		return notFound("servers", serverID)
	}
	kept := s.VolumesAttached[:0]
	for _, v := range s.VolumesAttached {
		if v.ID != volumeID {
			kept = append(kept, v)
		}
	}
	s.VolumesAttached = kept
	return nil
}

// SetVolumeBootable implements provisioning.CloudAPI.
func (f *FakeCloud) SetVolumeBootable(_ context.Context, volumeID string, flag bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("set_bootable", volumeID); err != nil {
		return err
	}
	v, ok := f.volumes[volumeID]
	if !ok {
		return notFound("volumes", volumeID)
	}
	v.Bootable = fmt.Sprint(flag)
	return nil
}

// CreateVolumeSnapshot implements provisioning.CloudAPI.
func (f *FakeCloud) CreateVolumeSnapshot(_ context.Context, name, volumeID string) (*openstack.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create_snapshot", name); err != nil {
		return nil, err
	}
	s := &openstack.Snapshot{ID: f.id("snapshot"), Name: name, Status: "creating", VolumeID: volumeID}
	f.snapshots[s.ID] = s
	cp := *s
	return &cp, nil
}

// WaitVolumeSnapshot implements provisioning.CloudAPI.
func (f *FakeCloud) WaitVolumeSnapshot(_ context.Context, id, status string) (*openstack.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("wait_snapshot", id); err != nil {
		return nil, err
	}
	s, ok := f.snapshots[id]
	if !ok {
		return nil, notFound("snapshots", id)
	}
	s.Status = status
	cp := *s
	return &cp, nil
}

// CreateServer implements provisioning.CloudAPI. The server gets one port,
// or two when MultiPort is set, and the next free 192.0.2.x address.
func (f *FakeCloud) CreateServer(_ context.Context, opts openstack.ServerCreateOpts) (*openstack.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create_server", opts.Name); err != nil {
		return nil, err
	}
	s := &openstack.Server{ID: f.id("server"), Name: opts.Name, Status: "BUILD", Metadata: opts.Metadata}
	f.servers[s.ID] = s

	addr := fmt.Sprintf("192.0.2.%d", len(f.servers)+10)
	s.Addresses = map[string][]openstack.Address{f.externalNetwork: {{Addr: addr, Version: 4}}}

	nics := 1
	if opts.MultiPort {
		nics = 2
	}
	for range nics {
		enabled := true
		p := &openstack.Port{ID: f.id("port"), DeviceID: s.ID, Status: "ACTIVE", PortSecurityEnabled: &enabled, SecurityGroups: []string{"default"}}
		f.ports[p.ID] = p
	}
	return &openstack.Server{ID: s.ID}, nil
}

// WaitServer implements provisioning.CloudAPI.
func (f *FakeCloud) WaitServer(_ context.Context, id, status string) (*openstack.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("wait_server", id); err != nil {
		return nil, err
	}
	s, ok := f.servers[id]
	if !ok {
		return nil, notFound("servers", id)
	}
	s.Status = status
	cp := *s
	return &cp, nil
}

// ExternalAddress implements provisioning.CloudAPI.
func (f *FakeCloud) ExternalAddress(s *openstack.Server) (string, error) {
	return s.Address(f.externalNetwork)
}

// ShowPort implements provisioning.CloudAPI.
func (f *FakeCloud) ShowPort(_ context.Context, id string) (*openstack.Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("show_port", id); err != nil {
		return nil, err
	}
	p, ok := f.ports[id]
	if !ok {
		return nil, notFound("ports", id)
	}
	cp := *p
	return &cp, nil
}

// ListPorts implements provisioning.CloudAPI.
func (f *FakeCloud) ListPorts(_ context.Context, deviceID string) ([]openstack.Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("list_ports", deviceID); err != nil {
		return nil, err
	}
	var out []openstack.Port
	for _, p := range f.ports {
		if p.DeviceID == deviceID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ClearPortSecurityGroups implements provisioning.CloudAPI.
func (f *FakeCloud) ClearPortSecurityGroups(_ context.Context, id string) (*openstack.Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("clear_port", id); err != nil {
		return nil, err
	}
	p, ok := f.ports[id]
	if !ok {
		return nil, notFound("ports", id)
	}
	disabled := false
	p.PortSecurityEnabled = &disabled
	p.SecurityGroups = []string{}
	cp := *p
	return &cp, nil
}

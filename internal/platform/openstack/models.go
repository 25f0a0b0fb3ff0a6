package openstack

import "fmt"

// Field names follow the OpenStack wire format. Request payloads are
// unexported; response types are shared with callers.

// authRequest is the keystone v3 password-method token request.
type authRequest struct {
	Auth authBody `json:"auth"`
}

type authBody struct {
	Identity authIdentity `json:"identity"`
	Scope    authScope    `json:"scope"`
}

type authIdentity struct {
	Methods  []string     `json:"methods"`
	Password authPassword `json:"password"`
}

type authPassword struct {
	User authUser `json:"user"`
}

type authUser struct {
	Name     string     `json:"name"`
	Password string     `json:"password"`
	Domain   authDomain `json:"domain"`
}

type authDomain struct {
	Name string `json:"name"`
}

type authScope struct {
	Project authProject `json:"project"`
}

type authProject struct {
	Domain authDomain `json:"domain"`
	Name   string     `json:"name"`
}

func newAuthRequest(user, password, domain, project string) authRequest {
	return authRequest{Auth: authBody{
		Identity: authIdentity{
			Methods: []string{"password"},
			Password: authPassword{User: authUser{
				Name:     user,
				Password: password,
				Domain:   authDomain{Name: domain},
			}},
		},
		Scope: authScope{Project: authProject{
			Domain: authDomain{Name: domain},
			Name:   project,
		}},
	}}
}

// Image is a glance image.
type Image struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	DiskFormat string `json:"disk_format,omitempty"`
}

type imageList struct {
	Images []Image `json:"images"`
}

// Volume is a cinder volume.
type Volume struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Size             int    `json:"size"`
	AvailabilityZone string `json:"availability_zone"`
	Status           string `json:"status"`
	Bootable         string `json:"bootable,omitempty"`
}

type volumeEnvelope struct {
	Volume Volume `json:"volume"`
}

type volumeCreateRequest struct {
	Volume volumeCreate `json:"volume"`
}

type volumeCreate struct {
	Size             int    `json:"size"`
	AvailabilityZone string `json:"availability_zone"`
	Name             string `json:"name"`
}

// VolumeAttachment links a volume to a server.
type VolumeAttachment struct {
	ID                  string `json:"id,omitempty"`
	ServerID            string `json:"serverId,omitempty"`
	VolumeID            string `json:"volumeId"`
	Device              string `json:"device"`
	DeleteOnTermination bool   `json:"delete_on_termination"`
}

type volumeAttachmentEnvelope struct {
	VolumeAttachment VolumeAttachment `json:"volumeAttachment"`
}

type setBootableRequest struct {
	SetBootable bootable `json:"os-set_bootable"`
}

type bootable struct {
	Bootable bool `json:"bootable"`
}

type volumeUploadRequest struct {
	Upload volumeUpload `json:"os-volume_upload_image"`
}

type volumeUpload struct {
	ImageName       string `json:"image_name"`
	DiskFormat      string `json:"disk_format"`
	ContainerFormat string `json:"container_format"`
	Visibility      string `json:"visibility"`
	Protected       bool   `json:"protected"`
}

// VolumeUploadResult is the image created from a volume.
type VolumeUploadResult struct {
	ImageID   string `json:"image_id"`
	ImageName string `json:"image_name"`
	Status    string `json:"status"`
}

type volumeUploadResponse struct {
	Upload VolumeUploadResult `json:"os-volume_upload_image"`
}

// Snapshot is a cinder volume snapshot.
type Snapshot struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	VolumeID string `json:"volume_id"`
}

type snapshotEnvelope struct {
	Snapshot Snapshot `json:"snapshot"`
}

type snapshotList struct {
	Snapshots []Snapshot `json:"snapshots"`
}

type snapshotCreateRequest struct {
	Snapshot snapshotCreate `json:"snapshot"`
}

type snapshotCreate struct {
	Name     string `json:"name"`
	VolumeID string `json:"volume_id"`
	Force    bool   `json:"force"`
}

// Server is a nova server.
type Server struct {
	ID              string               `json:"id"`
	Name            string               `json:"name,omitempty"`
	Status          string               `json:"status,omitempty"`
	Addresses       map[string][]Address `json:"addresses,omitempty"`
	VolumesAttached []AttachedVolume     `json:"os-extended-volumes:volumes_attached,omitempty"`
	Metadata        map[string]string    `json:"metadata,omitempty"`
}

// Address returns the first address on the named network.
func (s *Server) Address(network string) (string, error) {
	addrs := s.Addresses[network]
	if len(addrs) == 0 || addrs[0].Addr == "" {
		return "", fmt.Errorf("server %s on network %q: %w", s.ID, network, ErrNoAddress)
	}
	return addrs[0].Addr, nil
}

// Address is one server network address.
type Address struct {
	Addr    string `json:"addr"`
	Version int    `json:"version,omitempty"`
	Type    string `json:"OS-EXT-IPS:type,omitempty"`
}

// AttachedVolume references a volume attached to a server.
type AttachedVolume struct {
	ID string `json:"id"`
}

type serverEnvelope struct {
	Server Server `json:"server"`
}

type serverCreateRequest struct {
	Server serverCreate `json:"server"`
}

type serverCreate struct {
	Name                 string            `json:"name"`
	Networks             []networkRef      `json:"networks"`
	AvailabilityZone     string            `json:"availability_zone"`
	ImageRef             string            `json:"imageRef,omitempty"`
	FlavorRef            string            `json:"flavorRef"`
	MaxCount             int               `json:"max_count"`
	BlockDeviceMappingV2 []BlockDevice     `json:"block_device_mapping_v2,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

type networkRef struct {
	UUID string `json:"uuid"`
}

// BlockDevice is one block_device_mapping_v2 entry.
type BlockDevice struct {
	BootIndex           int    `json:"boot_index"`
	DeleteOnTermination bool   `json:"delete_on_termination"`
	SourceType          string `json:"source_type"`
	DestinationType     string `json:"destination_type"`
	UUID                string `json:"uuid"`
}

type isoDetachRequest struct {
	Detach struct{} `json:"detach"`
}

// Port is a neutron port.
type Port struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Status              string    `json:"status"`
	DeviceID            string    `json:"device_id,omitempty"`
	FixedIPs            []FixedIP `json:"fixed_ips"`
	PortSecurityEnabled *bool     `json:"port_security_enabled,omitempty"`
	SecurityGroups      []string  `json:"security_groups,omitempty"`
}

// FixedIP is one address bound to a port.
type FixedIP struct {
	SubnetID  string `json:"subnet_id,omitempty"`
	IPAddress string `json:"ip_address"`
}

type portEnvelope struct {
	Port Port `json:"port"`
}

type portList struct {
	Ports []Port `json:"ports"`
}

type portUpdateRequest struct {
	Port portUpdate `json:"port"`
}

type portUpdate struct {
	PortSecurityEnabled bool     `json:"port_security_enabled"`
	SecurityGroups      []string `json:"security_groups"`
}

// clearedPort disables port security and drops every security group.
func clearedPort() portUpdateRequest {
	return portUpdateRequest{Port: portUpdate{PortSecurityEnabled: false, SecurityGroups: []string{}}}
}

// Package command holds the shell commands pipeman runs on remote hosts,
// keyed by the logical action they perform.
package command

import (
	"fmt"

	"github.com/wangkuntian/pipeman/internal/config"
)

// Action names a remote step.
type Action string

// Known actions.
const (
	CreateImage     Action = "create_image"
	InstallUSwift   Action = "install_uswift"
	ListNICs        Action = "list_nics"
	SetHostname     Action = "set_hostname"
	Reboot          Action = "reboot"
	DeployAllInOne  Action = "deploy_all_in_one"
	DeployMultiNode Action = "deploy_multi_node"
)

const openrc = "source /root/admin-openrc.sh"

// Registry maps actions to printf-style templates.
type Registry struct {
	templates map[Action]string
}

// NewRegistry returns the default command set.
func NewRegistry() *Registry {
	return &Registry{templates: map[Action]string{
		CreateImage: openrc + " && openstack image create -f value -c id" +
			" --disk-format %s --container-format bare --public --file %s %s",
		InstallUSwift:   "sudo uswift-installer install -i uswift.ign %s -n",
		ListNICs:        "ifconfig | grep -e ^en | awk -F ':' '{print $1}'",
		SetHostname:     "hostnamectl set-hostname %s",
		Reboot:          "reboot",
		DeployAllInOne:  "cd /etc/ustack-deploy/ && python3 deploy.py all_in_one",
		DeployMultiNode: "cd /etc/ustack-deploy/ && python3 deploy.py all",
	}}
}

// Render formats the template registered for a.
func (r *Registry) Render(a Action, args ...any) string {
	tmpl, ok := r.templates[a]
	if !ok {
		panic(fmt.Sprintf("command: no template for action %q", a))
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

// CreateImage uploads a file on the bootstrap host to glance and prints the image id.
func (r *Registry) CreateImage(diskFormat, path, name string) string {
	return r.Render(CreateImage, diskFormat, path, name)
}

// InstallUSwift installs the operating system onto device.
func (r *Registry) InstallUSwift(device string) string {
	return r.Render(InstallUSwift, device)
}

// ListNICs prints the names of interfaces starting with "en", one per line.
func (r *Registry) ListNICs() string {
	return r.Render(ListNICs)
}

// SetHostname sets the static hostname.
func (r *Registry) SetHostname(name string) string {
	return r.Render(SetHostname, name)
}

// Reboot restarts the host.
func (r *Registry) Reboot() string {
	return r.Render(Reboot)
}

// Deploy is the remote deploy entry point for mode.
func (r *Registry) Deploy(mode config.Mode) string {
	if mode == config.ModeMultiNode {
		return r.Render(DeployMultiNode)
	}
	return r.Render(DeployAllInOne)
}

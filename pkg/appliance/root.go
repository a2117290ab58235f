package appliance

import (
	"github.com/coralstor/coral/pkg/daemon"
	"github.com/coralstor/coral/pkg/eval"
)

// BuildRoot assembles the namespace tree of the appliance over the given
// client. The tree mirrors the collections and tasks the middleware
// simulator serves.
func BuildRoot(client *daemon.Client, blocking bool) eval.Namespace {
	disk := NewEntity(client, EntityOptions{
		Name:       "disk",
		Collection: "disk",
		Properties: []Property{
			{Name: "name", Doc: "device name"},
			{Name: "size", Doc: "capacity in bytes"},
			{Name: "model", Doc: "hardware model"},
			{Name: "pool", Doc: "owning pool, empty when unassigned"},
		},
		Blocking: blocking,
	})
	volume := NewEntity(client, EntityOptions{
		Name:       "volume",
		Collection: "volume",
		Properties: []Property{
			{Name: "name", Doc: "volume name"},
			{Name: "size", Doc: "capacity in bytes"},
			{Name: "used", Doc: "used bytes"},
			{Name: "status", Doc: "health status"},
		},
		Tasks: map[string]string{
			"create": "volume.create",
			"delete": "volume.delete",
		},
		Blocking: blocking,
	})
	share := NewEntity(client, EntityOptions{
		Name:       "share",
		Collection: "share",
		Properties: []Property{
			{Name: "name", Doc: "share name"},
			{Name: "path", Doc: "exported path"},
			{Name: "protocol", Doc: "sharing protocol"},
			{Name: "enabled", Doc: "whether the share is active"},
		},
		Tasks: map[string]string{
			"create": "share.create",
			"delete": "share.delete",
		},
		Blocking: blocking,
	})
	user := NewEntity(client, EntityOptions{
		Name:       "user",
		Collection: "account",
		Properties: []Property{
			{Name: "name", Doc: "login name"},
			{Name: "uid", Doc: "numeric user ID"},
			{Name: "shell", Doc: "login shell"},
		},
		Blocking: blocking,
	})
	account := NewStatic("account", user)
	system := NewEntity(client, EntityOptions{
		Name:     "system",
		Tasks:    map[string]string{"reboot": "system.reboot"},
		Blocking: blocking,
	})

	return NewStatic("/", account, disk, share, system, volume)
}

package uploadfs

import (
	"context"
	"sync"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Root is the mountpoint directory. It lists nothing; files spring into
// existence by lookup for exactly the registered session UUIDs.
type Root struct {
	fs.Inode
}

var (
	_ fs.NodeLookuper  = (*Root)(nil)
	_ fs.NodeGetattrer = (*Root)(nil)
	_ fs.NodeReaddirer = (*Root)(nil)
)

func (r *Root) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if !registered(name) {
		return nil, syscall.ENOENT
	}
	node := &uploadNode{id: name}
	ch := r.NewInode(ctx, node, fs.StableAttr{Mode: fuse.S_IFREG})
	fillAttr(&out.Attr)
	return ch, 0
}

func (r *Root) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = fuse.S_IFDIR | 0o755
	out.Nlink = 2
	return 0
}

func (r *Root) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	// Upload files are deliberately unlisted; writers must know their UUID.
	return fs.NewListDirStream(nil), 0
}

type uploadNode struct {
	fs.Inode
	id string
}

var (
	_ fs.NodeGetattrer = (*uploadNode)(nil)
	_ fs.NodeOpener    = (*uploadNode)(nil)
	_ fs.NodeSetattrer = (*uploadNode)(nil)
)

func fillAttr(a *fuse.Attr) {
	a.Mode = fuse.S_IFREG | 0o222
	a.Size = 0
	a.Nlink = 1
}

func (n *uploadNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if !registered(n.id) {
		return syscall.ENOENT
	}
	fillAttr(&out.Attr)
	return 0
}

func (n *uploadNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if !registered(n.id) {
		return nil, 0, syscall.ENOENT
	}
	if flags&syscall.O_ACCMODE != syscall.O_WRONLY {
		return nil, 0, syscall.EACCES
	}
	return &uploadHandle{id: n.id}, fuse.FOPEN_DIRECT_IO, 0
}

func (n *uploadNode) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if !registered(n.id) {
		return syscall.ENOENT
	}
	if _, ok := in.GetMode(); ok {
		return syscall.EPERM
	}
	if _, ok := in.GetUID(); ok {
		return syscall.EPERM
	}
	if _, ok := in.GetGID(); ok {
		return syscall.EPERM
	}
	if sz, ok := in.GetSize(); ok && sz != 0 {
		return syscall.EINVAL
	}
	fillAttr(&out.Attr)
	return 0
}

// uploadHandle accumulates one open file's sequential writes.
type uploadHandle struct {
	mu    sync.Mutex
	id    string
	data  []byte
	efbig bool
}

var (
	_ fs.FileWriter   = (*uploadHandle)(nil)
	_ fs.FileReader   = (*uploadHandle)(nil)
	_ fs.FileReleaser = (*uploadHandle)(nil)
)

func (h *uploadHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	if !registered(h.id) {
		return 0, syscall.EIO
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if off != int64(len(h.data)) {
		return 0, syscall.EINVAL
	}
	if len(h.data)+len(data) > MaxUpload {
		h.efbig = true
		return 0, syscall.EFBIG
	}
	h.data = append(h.data, data...)
	return uint32(len(data)), 0
}

func (h *uploadHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	return nil, syscall.EPERM
}

func (h *uploadHandle) Release(ctx context.Context) syscall.Errno {
	h.mu.Lock()
	data := h.data
	efbig := h.efbig
	h.mu.Unlock()

	// A writer that blew the size cap gets nothing forwarded.
	if len(data) > 0 && !efbig {
		deliver(h.id, data)
	}
	return 0
}

// Mount serves the upload filesystem at dir. allow_other lets the in-jail
// user hit the files.
func Mount(dir string) (*fuse.Server, error) {
	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			AllowOther: true,
			FsName:     "discord",
			Name:       "osaibot",
		},
	}
	return fs.Mount(dir, &Root{}, opts)
}

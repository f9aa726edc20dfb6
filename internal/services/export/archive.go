package export

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zip"
)

// archive 在临时文件中组装 zip，上传完成后删除
type archive struct {
	dir  string
	file *os.File
	zw   *zip.Writer
	size int64
}

func newArchive(dir string) (*archive, error) {
	f, err := os.CreateTemp(dir, "docspace-export-*.zip")
	if err != nil {
		return nil, fmt.Errorf("创建临时压缩文件失败: %w", err)
	}
	return &archive{dir: dir, file: f, zw: zip.NewWriter(f)}, nil
}

// sourceError 源对象读取失败，此时压缩包尚未写入该条目
type sourceError struct {
	name string
	err  error
}

func (e *sourceError) Error() string {
	return fmt.Sprintf("读取 %s 失败: %v", e.name, e.err)
}

func (e *sourceError) Unwrap() error {
	return e.err
}

// trackingReader 记录源读取错误，用于区分源文件故障和本地写入故障
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

// add 先把源对象完整读入暂存文件，再写入压缩条目
// 源读取失败返回 *sourceError，压缩包保持可用；其余错误说明压缩包已不完整
func (a *archive) add(name string, modified time.Time, src io.Reader) error {
	stage, err := os.CreateTemp(a.dir, "docspace-entry-*")
	if err != nil {
		return fmt.Errorf("创建暂存文件失败: %w", err)
	}
	defer func() {
		_ = stage.Close()
		_ = os.Remove(stage.Name())
	}()

	tr := &trackingReader{r: src}
	if _, err := io.Copy(stage, tr); err != nil {
		if tr.err != nil {
			return &sourceError{name: name, err: tr.err}
		}
		return fmt.Errorf("写入暂存文件失败: %w", err)
	}
	if _, err := stage.Seek(0, io.SeekStart); err != nil {
		return err
	}

	w, err := a.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("创建压缩条目失败: %w", err)
	}
	if _, err := io.Copy(w, stage); err != nil {
		return fmt.Errorf("写入压缩条目失败: %w", err)
	}
	return nil
}

// finish 写入目录区并回到文件开头，返回压缩包大小
func (a *archive) finish() (int64, error) {
	if err := a.zw.Close(); err != nil {
		return 0, fmt.Errorf("关闭压缩包失败: %w", err)
	}
	info, err := a.file.Stat()
	if err != nil {
		return 0, err
	}
	if _, err := a.file.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	a.size = info.Size()
	return a.size, nil
}

func (a *archive) reader() io.Reader {
	return a.file
}

func (a *archive) discard() {
	name := a.file.Name()
	_ = a.file.Close()
	_ = os.Remove(name)
}

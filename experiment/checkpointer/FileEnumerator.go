package checkpointer

import "fmt"

// FilenameEnumerator returns a naming function for NewFile that keeps
// every checkpoint. The i-th call returns filename followed by
// start + i and then extension, for example "agent3.bin".
func FilenameEnumerator(start int, filename, extension string) func() string {
	i := start
	return func() string {
		i++
		return fmt.Sprintf("%s%d%s", filename, i, extension)
	}
}

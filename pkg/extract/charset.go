package extract

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// charsetReader 处理XML声明中的国标编码，部分开票软件会输出 GB18030 的 OFD
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "gb2312", "gbk", "cp936":
		return simplifiedchinese.GBK.NewDecoder().Reader(input), nil
	case "gb18030":
		return simplifiedchinese.GB18030.NewDecoder().Reader(input), nil
	case "utf-8", "utf8", "":
		return input, nil
	}
	return nil, fmt.Errorf("不支持的字符编码: %s", label)
}

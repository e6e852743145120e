package extract

import (
	"github.com/beevik/etree"
)

// LayoutKind OFD页面的排版类型
type LayoutKind int

const (
	// LayoutText 文字直接编码在 TextCode 中
	LayoutText LayoutKind = iota
	// LayoutGlyph 文字经字形表映射（TextObject 带 CGTransform）
	LayoutGlyph
	// LayoutVector 文字被绘制为路径，只能走OCR
	LayoutVector
)

func (k LayoutKind) String() string {
	switch k {
	case LayoutGlyph:
		return "glyph"
	case LayoutVector:
		return "vector"
	default:
		return "text"
	}
}

// 判定矢量排版的阈值
const (
	vectorMinPaths = 100
	vectorMaxTexts = 5
)

// LayoutInfo 排版判定结果
type LayoutInfo struct {
	Kind      LayoutKind `json:"kind"`
	PathCount int        `json:"path_count"`
	TextCount int        `json:"text_count"`
	// Reason 无法完成判定时的说明，例如缺少某个节点
	Reason string `json:"reason,omitempty"`
}

// IsVectorGraphics 是否为矢量图形排版
func (l LayoutInfo) IsVectorGraphics() bool {
	return l.Kind == LayoutVector
}

// DecideVector 路径对象多于100且文字对象少于5时判定为矢量排版
func DecideVector(pathCount, textCount int) bool {
	return pathCount > vectorMinPaths && textCount < vectorMaxTexts
}

// ClassifyLayout 沿 Page -> Content -> Layer -> PageBlock 路径统计对象数量并判定排版类型。
// 任一节点缺失时按文字排版处理。
func ClassifyLayout(root *etree.Element) LayoutInfo {
	if root == nil || root.Tag != "Page" {
		return LayoutInfo{Kind: LayoutText, Reason: "缺少 Page 节点"}
	}
	content := firstChild(root, "Content")
	if content == nil {
		return LayoutInfo{Kind: LayoutText, Reason: "缺少 Content 节点"}
	}
	layer := firstChild(content, "Layer")
	if layer == nil {
		return LayoutInfo{Kind: LayoutText, Reason: "缺少 Layer 节点"}
	}

	textObjects := childrenNamed(layer, "TextObject")
	info := LayoutInfo{Kind: LayoutText, TextCount: len(textObjects)}

	if block := firstChild(layer, "PageBlock"); block != nil {
		info.PathCount = len(childrenNamed(block, "PathObject"))
		if DecideVector(info.PathCount, info.TextCount) {
			info.Kind = LayoutVector
			return info
		}
	} else {
		info.Reason = "缺少 PageBlock 节点"
	}

	for _, obj := range textObjects {
		if firstChild(obj, "CGTransform") != nil {
			info.Kind = LayoutGlyph
			break
		}
	}
	return info
}

// firstChild 按本地名（忽略命名空间前缀）查找第一个子元素
func firstChild(el *etree.Element, local string) *etree.Element {
	for _, c := range el.ChildElements() {
		if c.Tag == local {
			return c
		}
	}
	return nil
}

// childrenNamed 按本地名返回全部直接子元素
func childrenNamed(el *etree.Element, local string) []*etree.Element {
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if c.Tag == local {
			out = append(out, c)
		}
	}
	return out
}

package invoice

import "math"

var chineseDigits = map[rune]int64{
	'零': 0, '壹': 1, '贰': 2, '叁': 3, '肆': 4,
	'伍': 5, '陆': 6, '柒': 7, '捌': 8, '玖': 9,
}

var chineseUnits = map[rune]int64{
	'拾': 10, '佰': 100, '仟': 1000, '万': 10000, '亿': 100000000,
}

// DecodeChineseNumeral 将大写中文金额数字转换为整数，例如 "肆仟捌佰贰拾贰" -> 4822, "叁万" -> 30000
//
// 从低位向高位扫描。拾、佰、仟设置当前位权，万、亿开启新的节，节内数字整体乘以节权。
// 无法识别的字符直接跳过，调用方需先确认输入匹配大写数字格式。
// 结果超出 int64 范围（如 "壹亿亿亿"）时返回 0。
func DecodeChineseNumeral(s string) int64 {
	runes := []rune(s)

	var result int64
	unit := int64(1)
	section := int64(1)
	for i := len(runes) - 1; i >= 0; i-- {
		r := runes[i]
		if d, ok := chineseDigits[r]; ok {
			if !addPlace(&result, d, unit, section) {
				return 0
			}
			continue
		}
		u, ok := chineseUnits[r]
		if !ok {
			continue
		}
		if u >= 10000 {
			if u > section {
				section = u
			} else if section, ok = mulInt64(section, u); !ok {
				return 0
			}
			unit = 1
			continue
		}
		unit = u
		// "拾万" 这类省略了首位"壹"的写法
		if u == 10 && !hasDigitBefore(runes, i) && !addPlace(&result, 1, unit, section) {
			return 0
		}
	}
	return result
}

// addPlace 累加 d*unit*section，溢出时返回 false
func addPlace(result *int64, d, unit, section int64) bool {
	weight, ok := mulInt64(unit, section)
	if !ok {
		return false
	}
	v, ok := mulInt64(d, weight)
	if !ok || *result > math.MaxInt64-v {
		return false
	}
	*result += v
	return true
}

// mulInt64 非负数乘法，溢出时返回 false
func mulInt64(a, b int64) (int64, bool) {
	if a != 0 && b > math.MaxInt64/a {
		return 0, false
	}
	return a * b, true
}

// hasDigitBefore 判断位置 i 左侧紧邻的字符是否为数字
func hasDigitBefore(runes []rune, i int) bool {
	if i == 0 {
		return false
	}
	_, ok := chineseDigits[runes[i-1]]
	return ok
}

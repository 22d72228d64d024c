// Package advice maps a day's weather to clothing recommendations. The
// rules are a pure lookup bucketed by average temperature with
// adjustments for rain/snow and sunshine; Generate never fails.
package advice

import (
	"strings"

	"github.com/nimbusai/nimbus/internal/weather"
)

// ClothingAdvice is a structured outfit recommendation.
type ClothingAdvice struct {
	Overview    string `json:"overview"`
	Top         string `json:"top,omitempty"`
	Bottom      string `json:"bottom,omitempty"`
	Shoes       string `json:"shoes,omitempty"`
	Accessories string `json:"accessories,omitempty"`
	Reminder    string `json:"reminder,omitempty"`
}

// Generate produces advice for one day of weather. A nil day yields a
// degraded default rather than an error.
func Generate(day *weather.DailyWeather) *ClothingAdvice {
	if day == nil {
		return &ClothingAdvice{Overview: "暂无天气数据"}
	}

	adv := byTemperature(day.AverageTemp())

	if day.IsRainy() {
		adv.Reminder = "今天有" + day.TextDay + "，记得带伞 ☔"
		adv.Shoes = "防水鞋/雨鞋"
		adv.Accessories = "雨伞"
	} else if strings.Contains(day.TextDay, "晴") {
		adv.Accessories = "太阳镜/遮阳帽"
	}

	return &adv
}

// byTemperature returns the base recommendation for an average
// temperature. Buckets run coldest to hottest.
func byTemperature(temp int) ClothingAdvice {
	switch {
	case temp < -10:
		return ClothingAdvice{
			Overview:    "极寒天气，注意保暖！",
			Top:         "厚羽绒服 + 保暖内衣 + 毛衣",
			Bottom:      "加绒裤/羽绒裤",
			Shoes:       "雪地靴/棉靴",
			Accessories: "围巾、手套、帽子、口罩",
		}
	case temp < 0:
		return ClothingAdvice{
			Overview:    "天气寒冷，全副武装",
			Top:         "羽绒服 + 毛衣",
			Bottom:      "厚裤子/加绒裤",
			Shoes:       "保暖鞋/靴子",
			Accessories: "围巾、手套、帽子",
		}
	case temp < 5:
		return ClothingAdvice{
			Overview:    "天气较冷，注意保暖",
			Top:         "羽绒服/厚棉服",
			Bottom:      "长裤/厚裤子",
			Shoes:       "运动鞋/休闲鞋",
			Accessories: "围巾、手套",
		}
	case temp < 10:
		return ClothingAdvice{
			Overview:    "天气凉爽",
			Top:         "大衣/棉服/夹克 + 薄毛衣",
			Bottom:      "长裤",
			Shoes:       "运动鞋/休闲鞋",
			Accessories: "薄围巾",
		}
	case temp < 15:
		return ClothingAdvice{
			Overview:    "舒适温度",
			Top:         "外套/风衣/卫衣",
			Bottom:      "长裤/牛仔裤",
			Shoes:       "运动鞋/休闲鞋",
			Accessories: "根据需要携带薄外套",
		}
	case temp < 20:
		return ClothingAdvice{
			Overview: "温暖舒适",
			Top:      "薄外套/长袖衬衫/T恤",
			Bottom:   "长裤/休闲裤",
			Shoes:    "运动鞋/帆布鞋",
		}
	case temp < 25:
		return ClothingAdvice{
			Overview: "天气温暖",
			Top:      "T恤/衬衫",
			Bottom:   "长裤/薄裤",
			Shoes:    "运动鞋/休闲鞋",
		}
	case temp < 30:
		return ClothingAdvice{
			Overview:    "天气较热",
			Top:         "短袖/薄衬衫",
			Bottom:      "短裤/薄长裤",
			Shoes:       "凉鞋/透气鞋",
			Accessories: "遮阳帽",
		}
	default:
		return ClothingAdvice{
			Overview:    "天气炎热，注意防暑！",
			Top:         "短袖/背心/薄衣物",
			Bottom:      "短裤/裙装",
			Shoes:       "凉鞋/拖鞋",
			Accessories: "遮阳帽、太阳镜、防晒霜",
		}
	}
}

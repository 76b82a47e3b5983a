package criteria

import "slices"

// Kinds accepted by the catalog.
const (
	KindMovie = "movie"
	KindTV    = "tv"
)

// Vocab lists the filter values the catalog accepts for one kind.
type Vocab struct {
	Categories []string `json:"category"`
	Regions    []string `json:"region"`
	Years      []string `json:"year"`
	Labels     []string `json:"label"`
	Platforms  []string `json:"platform,omitempty"`
}

var (
	labels = []string{"高分", "经典", "冷门"}
	years  = []string{"2020年代", "2025", "2024", "2023", "2022", "2021", "2020", "2019", "2010年代", "2000年代", "90年代", "80年代", "70年代", "60年代", "更早"}

	vocabulary = map[string]Vocab{
		KindMovie: {
			Categories: []string{"喜剧", "爱情", "动作", "科幻", "动画", "悬疑", "犯罪", "惊悚", "冒险", "音乐", "历史", "奇幻", "恐怖", "战争", "传记", "歌舞", "武侠", "灾难", "西部", "纪录片", "短片"},
			Regions:    []string{"华语", "欧美", "韩国", "日本", "中国大陆", "美国", "中国香港", "中国台湾", "英国", "法国", "德国", "意大利", "西班牙", "印度", "泰国", "俄罗斯", "加拿大", "澳大利亚", "爱尔兰", "瑞典", "巴西", "丹麦"},
			Years:      years,
			Labels:     labels,
		},
		KindTV: {
			Categories: []string{"喜剧", "爱情", "悬疑", "动画", "武侠", "古装", "家庭", "犯罪", "科幻", "恐怖", "历史", "战争", "动作", "冒险", "传记", "剧情", "奇幻", "惊悚", "灾难", "歌舞", "音乐"},
			Regions:    []string{"华语", "欧美", "国外", "韩国", "日本", "中国大陆", "中国香港", "美国", "英国", "泰国", "中国台湾", "意大利", "法国", "德国", "西班牙", "俄罗斯", "瑞典", "巴西", "丹麦", "印度", "加拿大", "爱尔兰", "澳大利亚"},
			Years:      years,
			Labels:     labels,
			Platforms:  []string{"腾讯视频", "爱奇艺", "优酷", "湖南卫视", "Netflix", "HBO", "BBC", "NHK", "CBS", "NBC", "tvN"},
		},
	}
)

// Vocabulary returns a copy of the allowed filter values keyed by kind.
func Vocabulary() map[string]Vocab {
	out := make(map[string]Vocab, len(vocabulary))
	for k, v := range vocabulary {
		out[k] = Vocab{
			Categories: slices.Clone(v.Categories),
			Regions:    slices.Clone(v.Regions),
			Years:      slices.Clone(v.Years),
			Labels:     slices.Clone(v.Labels),
			Platforms:  slices.Clone(v.Platforms),
		}
	}
	return out
}

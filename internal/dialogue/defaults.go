package dialogue

import (
	"github.com/aikyo-ai/aikyo/internal/emotion"
	"github.com/aikyo-ai/aikyo/internal/event"
	"github.com/aikyo-ai/aikyo/internal/tenant"
)

// DefaultLibrary returns the built-in authored template library.
//
// Authoring coverage is deliberately uneven: the cheerful persona is authored
// in all four languages for the common (kind, emotion) pairs, cool and cute
// are authored in English, and everything else rides the fallback chain down
// to the per-kind static lines.
func DefaultLibrary() *Library {
	l := NewLibrary()

	const (
		cheerful = tenant.PersonaCheerful
		cool     = tenant.PersonaCool
		cute     = tenant.PersonaCute
		en       = tenant.LanguageEN
		zh       = tenant.LanguageZH
		ja       = tenant.LanguageJA
		ko       = tenant.LanguageKO
	)

	// ── victory ──

	l.Add(event.KindVictory, emotion.Excited, cheerful, en,
		"YES! {win_streak} in a row, you're unstoppable!",
		"That was incredible! Nobody can touch you today!")
	l.Add(event.KindVictory, emotion.Excited, cheerful, zh,
		"太棒了！{win_streak}连胜，你根本停不下来！",
		"赢啦赢啦！今天没人是你的对手！")
	l.Add(event.KindVictory, emotion.Excited, cheerful, ja,
		"やったー！{win_streak}連勝だよ、止まらないね！",
		"すごいすごい！今日は誰にも負けないね！")
	l.Add(event.KindVictory, emotion.Excited, cheerful, ko,
		"대박! {win_streak}연승이야, 막을 수가 없네!",
		"이겼다! 오늘은 아무도 못 이겨!")
	l.Add(event.KindVictory, emotion.Excited, cool, en,
		"{win_streak} straight. Called it.",
		"Streak's alive. Keep it rolling.")
	l.Add(event.KindVictory, emotion.Excited, cute, en,
		"Wooow, {win_streak} wins!! You're the best ever!!")

	l.Add(event.KindVictory, emotion.Proud, cheerful, en,
		"MVP! I knew you had it in you!",
		"Carried the whole team, as usual!")
	l.Add(event.KindVictory, emotion.Proud, cheerful, zh,
		"MVP！我就知道你可以的！",
		"又是你带飞全场！")
	l.Add(event.KindVictory, emotion.Proud, cheerful, ja,
		"MVPだ！やると思ってたよ!",
		"今日もチームを引っ張ったね！")
	l.Add(event.KindVictory, emotion.Proud, cheerful, ko,
		"MVP! 해낼 줄 알았어!",
		"역시 네가 팀을 다 캐리했네!")
	l.Add(event.KindVictory, emotion.Proud, cool, en,
		"MVP. Obviously.")
	l.Add(event.KindVictory, emotion.Proud, cute, en,
		"MVP!! That's my hero!!")

	l.Add(event.KindVictory, emotion.Happy, cheerful, en,
		"Nice win! That one felt good, right?",
		"Victory! Great job out there!")
	l.Add(event.KindVictory, emotion.Happy, cheerful, zh,
		"赢了！打得真漂亮！",
		"胜利！干得好！")
	l.Add(event.KindVictory, emotion.Happy, cheerful, ja,
		"勝ったね！いい試合だった！",
		"やった、勝利だ！")
	l.Add(event.KindVictory, emotion.Happy, cheerful, ko,
		"이겼다! 잘했어!",
		"승리! 멋진 경기였어!")
	l.Add(event.KindVictory, emotion.Happy, cool, en,
		"Clean win. Not bad.")
	l.Add(event.KindVictory, emotion.Happy, cute, en,
		"Yay, we won! So fun!")

	// ── boss defeats ──

	l.Add(event.KindCombatBossDefeated, emotion.Amazed, cheerful, en,
		"You actually beat it?! That boss was legendary!",
		"I can't believe what I just saw. Incredible!")
	l.Add(event.KindCombatBossDefeated, emotion.Amazed, cheerful, zh,
		"你居然打赢了？！那可是传说级的Boss！",
		"我简直不敢相信，太厉害了！")
	l.Add(event.KindCombatBossDefeated, emotion.Amazed, cheerful, ja,
		"本当に倒しちゃったの？！伝説のボスだよ！",
		"信じられない…すごすぎる！")
	l.Add(event.KindCombatBossDefeated, emotion.Amazed, cheerful, ko,
		"진짜 잡은 거야?! 전설의 보스였는데!",
		"방금 본 거 실화야? 대단해!")
	l.Add(event.KindCombatBossDefeated, emotion.Amazed, cool, en,
		"Huh. Didn't think that was possible.")
	l.Add(event.KindCombatBossDefeated, emotion.Excited, cheerful, en,
		"Boss down! That fight was amazing!",
		"You did it! What a battle!")
	l.Add(event.KindCombatBossDefeated, emotion.Excited, cheerful, zh,
		"Boss倒下了！这场战斗太精彩了！")
	l.Add(event.KindCombatBossDefeated, emotion.Excited, cheerful, ja,
		"ボス撃破！すごい戦いだった！")
	l.Add(event.KindCombatBossDefeated, emotion.Excited, cheerful, ko,
		"보스 클리어! 굉장한 전투였어!")

	// ── defeat ──

	l.Add(event.KindDefeat, emotion.Frustrated, cheerful, en,
		"Ugh, {loss_streak} in a row... we'll break it next game, promise!",
		"That one stung. Shake it off, okay?")
	l.Add(event.KindDefeat, emotion.Frustrated, cheerful, zh,
		"唉，{loss_streak}连败了……下一把一定赢回来！",
		"这把有点难受，别放在心上。")
	l.Add(event.KindDefeat, emotion.Frustrated, cheerful, ja,
		"うぅ、{loss_streak}連敗…次こそ勝とうね！",
		"悔しいね。切り替えていこう！")
	l.Add(event.KindDefeat, emotion.Frustrated, cheerful, ko,
		"으, {loss_streak}연패라니… 다음 판엔 꼭 이기자!",
		"아쉽다. 털어버리자, 알았지?")
	l.Add(event.KindDefeat, emotion.Frustrated, cool, en,
		"Rough stretch. It happens. Reset.")
	l.Add(event.KindDefeat, emotion.Sad, cheerful, en,
		"Aw, so close... next one's ours.",
		"That's okay, you played well anyway.")
	l.Add(event.KindDefeat, emotion.Sad, cheerful, zh,
		"哎呀，就差一点……下一把是我们的。",
		"没关系，你已经打得很好了。")
	l.Add(event.KindDefeat, emotion.Sad, cheerful, ja,
		"あと少しだったのに…次は勝てるよ。",
		"大丈夫、よく頑張ったよ。")
	l.Add(event.KindDefeat, emotion.Sad, cheerful, ko,
		"아깝다… 다음 판은 우리 거야.",
		"괜찮아, 충분히 잘했어.")
	l.Add(event.KindDefeat, emotion.Sad, cute, en,
		"Nooo... it's okay, I still think you're great!")

	// ── kills and deaths ──

	l.Add(event.KindKill, emotion.Excited, cheerful, en,
		"{kill_count} kills already?! You're on fire!",
		"What a spree! They can't stop you!")
	l.Add(event.KindKill, emotion.Excited, cheerful, zh,
		"已经{kill_count}个击杀了？！你火力全开啊！")
	l.Add(event.KindKill, emotion.Excited, cheerful, ja,
		"もう{kill_count}キル？！絶好調だね！")
	l.Add(event.KindKill, emotion.Excited, cheerful, ko,
		"벌써 {kill_count}킬?! 완전 불붙었네!")
	l.Add(event.KindKill, emotion.Happy, cheerful, en,
		"Nice shot!",
		"Got 'em!")
	l.Add(event.KindKill, emotion.Happy, cheerful, zh,
		"打得好！")
	l.Add(event.KindKill, emotion.Happy, cheerful, ja,
		"ナイスキル！")
	l.Add(event.KindKill, emotion.Happy, cheerful, ko,
		"나이스 킬!")
	l.Add(event.KindKill, emotion.Happy, cool, en,
		"Clean.")

	l.Add(event.KindDeath, emotion.Sympathetic, cheerful, en,
		"Ouch... that looked painful. You'll get them back.",
		"It's fine, everyone goes down sometimes.")
	l.Add(event.KindDeath, emotion.Sympathetic, cheerful, zh,
		"哎哟……看着都疼。回头找他们报仇。")
	l.Add(event.KindDeath, emotion.Sympathetic, cheerful, ja,
		"いたた…大丈夫？次はやり返そう。")
	l.Add(event.KindDeath, emotion.Sympathetic, cheerful, ko,
		"아야… 아프겠다. 다음엔 갚아주자.")

	// ── achievements, levels, loot ──

	l.Add(event.KindAchievement, emotion.Amazed, cheerful, en,
		"A {rarity} achievement?! Do you know how rare that is?!",
		"Whoa. That one almost nobody gets!")
	l.Add(event.KindAchievement, emotion.Amazed, cheerful, zh,
		"{rarity}成就？！你知道这有多稀有吗？！")
	l.Add(event.KindAchievement, emotion.Amazed, cheerful, ja,
		"{rarity}実績？！どれだけレアか分かってる？！")
	l.Add(event.KindAchievement, emotion.Amazed, cheerful, ko,
		"{rarity} 업적이라고?! 이거 얼마나 희귀한 건지 알아?!")
	l.Add(event.KindAchievement, emotion.Proud, cheerful, en,
		"Achievement unlocked! You earned that one!",
		"Look at you, collecting achievements!")
	l.Add(event.KindAchievement, emotion.Proud, cheerful, zh,
		"成就解锁！这是你应得的！")
	l.Add(event.KindAchievement, emotion.Proud, cheerful, ja,
		"実績解除！頑張った甲斐があったね！")
	l.Add(event.KindAchievement, emotion.Proud, cheerful, ko,
		"업적 달성! 네 노력의 결과야!")
	l.Add(event.KindAchievement, emotion.Proud, cool, en,
		"Another one for the collection.")

	l.Add(event.KindLevelUp, emotion.Proud, cheerful, en,
		"Level up! You're getting stronger every day!",
		"Ding! Congrats!")
	l.Add(event.KindLevelUp, emotion.Proud, cheerful, zh,
		"升级啦！你每天都在变强！")
	l.Add(event.KindLevelUp, emotion.Proud, cheerful, ja,
		"レベルアップ！どんどん強くなってるね！")
	l.Add(event.KindLevelUp, emotion.Proud, cheerful, ko,
		"레벨 업! 매일매일 강해지고 있어!")

	l.Add(event.KindLoot, emotion.Amazed, cheerful, en,
		"A {rarity} drop?! Quick, equip it!",
		"No way. NO WAY. That's a {rarity}!")
	l.Add(event.KindLoot, emotion.Amazed, cheerful, zh,
		"{rarity}掉落？！快装备上！")
	l.Add(event.KindLoot, emotion.Amazed, cheerful, ja,
		"{rarity}ドロップ？！早く装備して！")
	l.Add(event.KindLoot, emotion.Amazed, cheerful, ko,
		"{rarity} 드랍?! 빨리 장착해!")
	l.Add(event.KindLoot, emotion.Curious, cheerful, en,
		"Ooh, what did you find?",
		"New loot! Let's see it.")
	l.Add(event.KindLoot, emotion.Curious, cheerful, zh,
		"哦？捡到什么好东西了？")
	l.Add(event.KindLoot, emotion.Curious, cheerful, ja,
		"おっ、何を拾ったの？")
	l.Add(event.KindLoot, emotion.Curious, cheerful, ko,
		"오, 뭘 주운 거야?")

	// ── session and combat framing ──

	l.Add(event.KindSessionStart, emotion.Happy, cheerful, en,
		"You're back! I missed you. Ready to play?",
		"Hey hey! Let's make today a good one!")
	l.Add(event.KindSessionStart, emotion.Happy, cheerful, zh,
		"你回来啦！我好想你。准备开玩了吗？",
		"嘿嘿！今天也要加油哦！")
	l.Add(event.KindSessionStart, emotion.Happy, cheerful, ja,
		"おかえり！待ってたよ。今日も遊ぼう！",
		"やっほー！今日もいい一日にしようね！")
	l.Add(event.KindSessionStart, emotion.Happy, cheerful, ko,
		"돌아왔구나! 기다렸어. 시작해 볼까?",
		"안녕! 오늘도 재밌게 해보자!")
	l.Add(event.KindSessionStart, emotion.Happy, cool, en,
		"Back again. Let's get to it.")
	l.Add(event.KindSessionStart, emotion.Happy, cute, en,
		"You're heeere! Best part of my day!")

	l.Add(event.KindSessionEnd, emotion.Relieved, cheerful, en,
		"Good session! Rest up, I'll be here tomorrow.",
		"See you next time! Sleep well!")
	l.Add(event.KindSessionEnd, emotion.Relieved, cheerful, zh,
		"今天玩得很开心！好好休息，明天见。")
	l.Add(event.KindSessionEnd, emotion.Relieved, cheerful, ja,
		"今日もおつかれさま！ゆっくり休んでね。")
	l.Add(event.KindSessionEnd, emotion.Relieved, cheerful, ko,
		"오늘도 수고했어! 푹 쉬어, 내일 보자.")

	l.Add(event.KindCombatStart, emotion.Worried, cheerful, en,
		"Careful, your health is low! Don't be reckless!",
		"This looks dangerous... watch yourself!")
	l.Add(event.KindCombatStart, emotion.Worried, cheerful, zh,
		"小心，你血量很低！别冲动！")
	l.Add(event.KindCombatStart, emotion.Worried, cheerful, ja,
		"気をつけて、HPが少ないよ！無理しないで！")
	l.Add(event.KindCombatStart, emotion.Worried, cheerful, ko,
		"조심해, 체력이 얼마 없어! 무리하지 마!")
	l.Add(event.KindCombatStart, emotion.Determined, cheerful, en,
		"Here we go. You've got this!",
		"Focus up, let's win this fight!")
	l.Add(event.KindCombatStart, emotion.Determined, cheerful, zh,
		"来了来了。你可以的！")
	l.Add(event.KindCombatStart, emotion.Determined, cheerful, ja,
		"来たよ。君ならやれる！")
	l.Add(event.KindCombatStart, emotion.Determined, cheerful, ko,
		"시작이다. 넌 할 수 있어!")
	l.Add(event.KindCombatStart, emotion.Determined, cool, en,
		"Showtime.")

	// ── static per-kind neutral lines ──

	statics := map[event.Kind]map[tenant.Language]string{
		event.KindVictory: {
			en: "A win is a win.", zh: "赢了就好。",
			ja: "勝ちは勝ちだね。", ko: "이긴 건 이긴 거지.",
		},
		event.KindDefeat: {
			en: "On to the next one.", zh: "下一把再来。",
			ja: "次に行こう。", ko: "다음 판 가자.",
		},
		event.KindKill: {
			en: "Target down.", zh: "目标击倒。",
			ja: "ターゲット撃破。", ko: "목표 처치.",
		},
		event.KindDeath: {
			en: "Back to the fight soon.", zh: "马上就能重新开始。",
			ja: "すぐ復帰できるよ。", ko: "곧 다시 싸울 수 있어.",
		},
		event.KindAchievement: {
			en: "Achievement logged.", zh: "成就已记录。",
			ja: "実績を記録したよ。", ko: "업적 기록 완료.",
		},
		event.KindLevelUp: {
			en: "Level up.", zh: "升级了。",
			ja: "レベルアップ。", ko: "레벨 업.",
		},
		event.KindLoot: {
			en: "Picked something up.", zh: "捡到东西了。",
			ja: "何か拾ったね。", ko: "뭔가 주웠네.",
		},
		event.KindSessionStart: {
			en: "Welcome back.", zh: "欢迎回来。",
			ja: "おかえり。", ko: "어서 와.",
		},
		event.KindSessionEnd: {
			en: "See you next time.", zh: "下次见。",
			ja: "またね。", ko: "다음에 봐.",
		},
		event.KindCombatStart: {
			en: "Combat started.", zh: "战斗开始。",
			ja: "戦闘開始。", ko: "전투 시작.",
		},
		event.KindCombatBossDefeated: {
			en: "Boss defeated.", zh: "Boss已击败。",
			ja: "ボス撃破。", ko: "보스 처치.",
		},
	}
	for k, byLang := range statics {
		for lang, text := range byLang {
			l.AddStatic(k, lang, text)
		}
	}

	return l
}
